// Example: find subtitles for a movie and save the first one as WebVTT
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/alvarorichard/Gostream/pkg/gostream"
)

func main() {
	client, err := gostream.NewClient(gostream.WithoutStore())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	if len(client.SubtitleProviders()) == 0 {
		log.Fatal("No subtitle provider configured (set SUBDL_API_KEY or OPENSUBTITLES_API_KEY)")
	}

	ctx := context.Background()
	ref := gostream.MediaRef{Title: "Inception", Year: 2010, Kind: gostream.KindMovie, IMDBID: "tt1375666"}

	subs, err := client.Subtitles(ctx, ref, "vi", "en")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Found %d subtitles\n", len(subs))
	if len(subs) == 0 {
		return
	}

	data, err := client.FetchSubtitle(ctx, subs[0])
	if err != nil {
		log.Fatal(err)
	}
	name := fmt.Sprintf("inception.%s.vtt", subs[0].Lang)
	if err := os.WriteFile(name, data, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Saved %s from %s\n", name, subs[0].Provider)
}
