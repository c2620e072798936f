// Example: search every catalog source at once
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/alvarorichard/Gostream/pkg/gostream"
)

func main() {
	client, err := gostream.NewClient(gostream.WithoutStore())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	fmt.Println("Searching for 'The Boys'...")
	page, err := client.Search(context.Background(), "The Boys", gostream.SearchOptions{Kind: gostream.KindTV})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("\nFound %d results:\n\n", len(page.Items))
	for i, item := range page.Items {
		fmt.Printf("%d. %s\n", i+1, item.DisplayTitle())
		fmt.Printf("   Key: %s\n", item.Key)
		if len(item.Alternates) > 0 {
			fmt.Printf("   Also on: %v\n", item.Alternates)
		}
		if item.Overview != "" {
			desc := []rune(item.Overview)
			if len(desc) > 100 {
				desc = append(desc[:100], []rune("...")...)
			}
			fmt.Printf("   Overview: %s\n", string(desc))
		}
		fmt.Println()
	}
	if page.HasNext {
		fmt.Println("More results: pass SearchOptions{Page: 2}")
	}
}
