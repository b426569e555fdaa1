package scope

import (
	"github.com/smallbiznis/wattwatch/internal/scope/repository"
	"github.com/smallbiznis/wattwatch/internal/scope/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scope.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
