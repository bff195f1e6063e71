package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"github.com/sells-group/prequal-cli/internal/config"
)

// memoRetryKey is the workflow memo field carrying the retry settings the
// starter was configured with.
const memoRetryKey = "retry_config"

func payloadConverter() converter.DataConverter {
	return converter.GetDefaultDataConverter()
}

// Dial connects to the Temporal frontend.
func Dial(ctx context.Context, cfg config.TemporalConfig) (client.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := client.DialContext(dialCtx, client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: dial temporal at %s", cfg.HostPort)
	}
	return c, nil
}
