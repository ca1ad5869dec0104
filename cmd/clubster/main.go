// Command clubster はアクセス制御ゲートウェイとStripe Connect連携サービスを起動する。
//
//	clubster [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/clubster/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "clubster: %v\n", err)
		os.Exit(1)
	}
}
