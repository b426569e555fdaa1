package anomaly

import (
	"github.com/smallbiznis/wattwatch/internal/anomaly/service"
	"go.uber.org/fx"
)

var Module = fx.Module("anomaly.detector",
	fx.Provide(service.New),
)
