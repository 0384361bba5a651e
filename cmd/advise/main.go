// Command advise runs the crop advisory flows from the command line against
// local image files.
package main

import (
	"context"
	"os"

	"cropguide/backend/internal/model"
)

func main() {
	if err := newRootCmd(model.New).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
