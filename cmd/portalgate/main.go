// portalgate: gate de admisión y sesiones delante del portal.
//
//	portalgate serve          --config portalgate.yaml
//	portalgate verify-token   --config portalgate.yaml <token>
//	portalgate hash-password  < password.txt
package main

import (
	"os"

	"github.com/dropDatabas3/portalgate/internal/observability/logger"
)

func main() {
	err := newRootCmd().Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
