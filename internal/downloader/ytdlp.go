package downloader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/lrstanley/go-ytdlp"
)

// downloadWithYtDlp hands the playlist to yt-dlp, which copes with
// encrypted segments and split audio/video renditions
func downloadWithYtDlp(ctx context.Context, src models.StreamSource, dest string, report ProgressFunc) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}

	dl := ytdlp.New().
		Output(dest).
		Format("bestvideo+bestaudio/best").
		Downloader("ffmpeg").
		DownloaderArgs("ffmpeg_i:-allowed_extensions ALL").
		ConcurrentFragments(4).
		FragmentRetries("5").
		Retries("5").
		SocketTimeout(30).
		Impersonate("chrome")
	for k, v := range requestHeaders(src) {
		dl.AddHeaders(k + ":" + v)
	}

	var received, lastBytes int64
	var lastFile string
	dl.ProgressFunc(200*time.Millisecond, func(update ytdlp.ProgressUpdate) {
		if update.Status == ytdlp.ProgressStatusPostProcessing || update.Status == ytdlp.ProgressStatusFinished {
			return
		}
		if update.Filename != "" && update.Filename != lastFile {
			lastFile, lastBytes = update.Filename, 0
		}
		if delta := int64(update.DownloadedBytes) - lastBytes; delta > 0 {
			received += delta
			lastBytes = int64(update.DownloadedBytes)
		}
		report(Progress{Received: received, Total: int64(update.TotalBytes)})
	})

	if _, err := dl.Run(ctx, src.URL, "--hls-use-mpegts"); err != nil {
		return fmt.Errorf("yt-dlp download failed: %w", err)
	}
	if fi, err := os.Stat(dest); err == nil {
		report(Progress{Received: fi.Size(), Total: fi.Size()})
	}
	return nil
}
