// Cloud Functions deployment surface: the same reconciliation pass the
// CLI runs, triggered over HTTP or a Pub/Sub CloudEvent (Cloud Scheduler).
package dirsync

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/hashicorp/go-hclog"

	"github.com/hivetrack/dirsync/config"
	"github.com/hivetrack/dirsync/reconcile"
	"github.com/hivetrack/dirsync/store"
)

func init() {
	functions.HTTP("DirSyncHttp", dirSyncHTTP)
	functions.CloudEvent("DirSyncPubSub", dirSyncPubSub)
}

const (
	configEnv   = "DIRSYNC_CONFIG"
	logLevelEnv = "DIRSYNC_LOG_LEVEL"
	noApplyEnv  = "DIRSYNC_NO_APPLY"
)

func runReconciliation(ctx context.Context) (*reconcile.Stat, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "dirsync",
		Level:      hclog.LevelFromString(os.Getenv(logLevelEnv)),
		JSONFormat: true,
	})

	cfg, err := config.LoadConfig(os.Getenv(configEnv))
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(); err != nil {
		return nil, err
	}
	bindings, err := cfg.Bindings(logger)
	if err != nil {
		return nil, err
	}

	var modes reconcile.Modes
	modes.NoApply, _ = strconv.ParseBool(os.Getenv(noApplyEnv))

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return nil, err
	}

	return reconcile.New(st, logger, modes, cfg.LocalUsers).Run(ctx, bindings)
}

func dirSyncHTTP(w http.ResponseWriter, r *http.Request) {
	stat, err := runReconciliation(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	reconcile.WriteReport(w, stat)
}

func dirSyncPubSub(ctx context.Context, _ event.Event) error {
	_, err := runReconciliation(ctx)
	return err
}
