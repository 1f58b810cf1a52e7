package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/climate-finance/engine/internal/modules/channels"
	"github.com/climate-finance/engine/internal/modules/runs"
)

// InitializeRepositories creates the repositories on top of the database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.DB == nil {
		return fmt.Errorf("container database cannot be nil")
	}

	container.ChannelRepo = channels.NewRepository(container.DB.Conn(), log)
	container.RunRepo = runs.NewRepository(container.DB.Conn(), log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
