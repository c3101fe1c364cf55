package csvupload

import (
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/csvupload/domain"
	"github.com/smallbiznis/licensor/internal/csvupload/repository"
	"github.com/smallbiznis/licensor/internal/csvupload/service"
	"github.com/smallbiznis/licensor/internal/csvupload/sftp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("csvupload.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(provideUploader),
)

type uploaderResult struct {
	fx.Out

	Uploader domain.Uploader
}

// provideUploader leaves the uploader nil when SFTP is disabled; queued jobs
// then wait until it is configured.
func provideUploader(cfg config.Config, log *zap.Logger) (uploaderResult, error) {
	if !cfg.SFTP.Enabled {
		return uploaderResult{}, nil
	}
	u, err := sftp.NewUploader(cfg.SFTP, log)
	if err != nil {
		return uploaderResult{}, err
	}
	return uploaderResult{Uploader: u}, nil
}
