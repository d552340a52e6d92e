package main

import "github.com/LehuyH/transfer-helper/internal/app"

func main() {
	app.Main()
}
