package main

import (
	"fmt"

	_ "github.com/agentuity/go-datacache/cache"
	_ "github.com/agentuity/go-datacache/config"
	_ "github.com/agentuity/go-datacache/env"
	_ "github.com/agentuity/go-datacache/frame"
	_ "github.com/agentuity/go-datacache/logger"
	_ "github.com/agentuity/go-datacache/pathtmpl"
	_ "github.com/agentuity/go-datacache/serializer"
	_ "github.com/agentuity/go-datacache/staleness"
	_ "github.com/agentuity/go-datacache/store"
	_ "github.com/agentuity/go-datacache/sys"
)

func main() {
	fmt.Println("Hi")
}
