// Command tcconsole queries the global locks and sessions persisted by a
// transaction coordinator.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(submain(context.Background()))
}
