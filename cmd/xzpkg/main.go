package main

import "github.com/goplus/xzpkg/cmd/xzpkg/internal"

func main() {
	internal.Execute()
}
