package healthchecker

import (
	"context"

	"github.com/rapport-app/rapport/internal/logging"
	"github.com/rapport-app/rapport/internal/objectstore"
	"go.uber.org/zap"
)

func CheckObjectStore() bool {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := objectstore.NewClient()
	if err != nil {
		logging.Logger.Error("failed to create object store client", zap.String("error", err.Error()))
		return false
	}

	err = client.Probe(ctx)

	return err == nil
}
