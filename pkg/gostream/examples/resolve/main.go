// Example: resolve a playable stream for an episode
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alvarorichard/Gostream/pkg/gostream"
)

func main() {
	client, err := gostream.NewClient(gostream.WithoutStore())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	page, err := client.Search(ctx, "Dark", gostream.SearchOptions{})
	if err != nil {
		log.Fatal(err)
	}
	if len(page.Items) == 0 {
		log.Fatal("Nothing found")
	}

	item, err := client.Detail(ctx, page.Items[0].Key)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Selected: %s [%s]\n", item.DisplayTitle(), item.Source)

	ref := item.Ref()
	if item.Kind.IsEpisodic() {
		ref.Season, ref.Episode = 1, 1
	}

	fmt.Printf("Resolving %s...\n", ref)
	set, err := client.Resolve(ctx, ref)
	if err != nil {
		log.Fatalf("Error resolving stream: %v", err)
	}

	src, ok := client.SelectSource(set)
	if !ok {
		log.Fatal("No playable source")
	}

	fmt.Println("\n=== Stream Information ===")
	fmt.Printf("Provider: %s\n", set.Provider)
	fmt.Printf("Quality: %s\n", src.Quality)
	fmt.Printf("Stream URL: %s\n", src.URL)
	for key, value := range src.Headers {
		fmt.Printf("  %s: %s\n", key, value)
	}
	if len(set.Subtitles) > 0 {
		fmt.Println("\nSubtitles:")
		for _, sub := range set.Subtitles {
			fmt.Printf("  [%s] %s\n", sub.Lang, sub.URL)
		}
	}

	fmt.Println("\nYou can use this URL with video players like mpv or vlc")
	fmt.Printf("Example: mpv \"%s\"\n", src.URL)
}
