// Package main is the entry point for the BookQA service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	bookqasvc "github.com/kart-io/bookqa/internal/bookqa"
)

func main() {
	bookqasvc.NewApp().Run()
}
