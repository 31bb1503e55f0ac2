package cmd

import (
	"fmt"
	"os"

	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/provision"
)

// reportPublicKey shows the operator the key to register with the hosting
// service. Without it the first push is rejected.
func reportPublicKey(key *provision.KeyMaterial, host string, logger *logging.Logger) {
	pub, err := key.PublicKey()
	if err != nil {
		logger.Warnf("public key unavailable: %v", err)
		return
	}
	fmt.Fprintf(os.Stdout, "Register this deploy key with %s:\n\n  %s\n\n", host, pub)
}
