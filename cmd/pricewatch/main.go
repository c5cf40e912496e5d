package main

import "wishlist-pricewatch/internal/cli"

func main() {
	cli.Execute()
}
