package main

import "reportjudge/internal/app"

func main() {
	app.Main()
}
