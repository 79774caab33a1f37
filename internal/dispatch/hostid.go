package dispatch

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
)

// HostIdentity returns a stable identifier for the executing machine,
// written to the store's executing-host column. The hash suffix keeps two
// machines with the same hostname distinguishable across platforms.
func HostIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	sum := sha1.Sum([]byte(host + "|" + runtime.GOOS + "|" + runtime.GOARCH))
	return fmt.Sprintf("%s-%s", host, hex.EncodeToString(sum[:])[:12])
}
