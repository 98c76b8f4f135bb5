package main

import (
	"github.com/sglre6355/sgrlink/internal/cli"
	_ "github.com/sglre6355/sgrlink/internal/modules/music_player"
)

func main() {
	cli.Execute()
}
