package fsx_test

import (
	"fmt"

	"github.com/gostratum/fsx"
)

func ExampleDefaultConfig() {
	cfg := fsx.DefaultConfig()
	fmt.Println(cfg.Backend, cfg.DefaultPartSize>>20, cfg.SignedURLExpiry)

	// Output:
	// filesystem 5 1m0s
}

func ExampleDirKey() {
	fmt.Println(fsx.FileKey("//photos/./2024//"))
	fmt.Println(fsx.DirKey("photos///"))
	fmt.Printf("%q\n", fsx.DirKey("/"))

	// Output:
	// photos/2024
	// photos/
	// ""
}
