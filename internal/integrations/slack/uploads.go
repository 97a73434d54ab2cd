package slackbot

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"labelbot/internal/workflow"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

const maxUploadBytes = 20 << 20

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// classifyFiles splits shared files into sample batches and policy images.
// Everything else is reported back by name.
func classifyFiles(files []slack.File) (batches, images []slack.File, skipped []string) {
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		switch {
		case f.Size > maxUploadBytes:
			skipped = append(skipped, f.Name+" (too large)")
		case ext == ".json":
			batches = append(batches, f)
		case imageExts[ext]:
			images = append(images, f)
		default:
			skipped = append(skipped, f.Name)
		}
	}
	return batches, images, skipped
}

func downloadFile(api *slack.Client, f slack.File) ([]byte, error) {
	url := f.URLPrivateDownload
	if url == "" {
		url = f.URLPrivate
	}
	if url == "" {
		return nil, fmt.Errorf("no download url for %s", f.Name)
	}
	var buf bytes.Buffer
	if err := api.GetFile(url, &buf); err != nil {
		return nil, fmt.Errorf("download %s: %w", f.Name, err)
	}
	return buf.Bytes(), nil
}

func handleFileShare(api *slack.Client, wf *workflow.Workflow, ev *slackevents.MessageEvent) {
	if ev.Message == nil || len(ev.Message.Files) == 0 {
		return
	}
	batchFiles, images, skipped := classifyFiles(ev.Message.Files)
	log.Printf("file-share user=%s batches=%d images=%d skipped=%d", ev.User, len(batchFiles), len(images), len(skipped))

	var replies []string
	if len(batchFiles) > 0 {
		replies = append(replies, ingestBatches(api, wf, batchFiles, ev.User))
	}
	if len(images) > 0 {
		// Only one policy image is kept; the last one shared wins.
		img := images[len(images)-1]
		data, err := downloadFile(api, img)
		if err == nil {
			_, err = wf.SavePolicyImage(img.Name, data)
		}
		if err != nil {
			log.Printf("policy image error user=%s file=%s: %v", ev.User, img.Name, err)
			replies = append(replies, fmt.Sprintf("Could not store %s as the policy image: %v", img.Name, err))
		} else {
			replies = append(replies, fmt.Sprintf("Stored %s as the labeling policy image.", img.Name))
		}
	}
	if len(skipped) > 0 {
		replies = append(replies, fmt.Sprintf("Ignored %s. I accept .json batches and .png/.jpg/.jpeg policy images.", strings.Join(skipped, ", ")))
	}

	_, _, err := api.PostMessage(ev.Channel, slack.MsgOptionText(strings.Join(replies, "\n"), false))
	if err != nil {
		log.Printf("file-share reply error channel=%s: %v", ev.Channel, err)
	}
}

func ingestBatches(api *slack.Client, wf *workflow.Workflow, files []slack.File, userID string) string {
	batches := make([]workflow.Batch, 0, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		data, err := downloadFile(api, f)
		if err != nil {
			log.Printf("batch download error user=%s: %v", userID, err)
			return fmt.Sprintf("Could not download %s: %v. Nothing was stored.", f.Name, err)
		}
		batches = append(batches, workflow.Batch{Name: f.Name, Data: data})
		names = append(names, f.Name)
	}

	res, err := wf.Upload(batches, userID)
	if err != nil {
		log.Printf("batch upload error user=%s: %v", userID, err)
		var upErr *workflow.UploadError
		if errors.As(err, &upErr) {
			return fmt.Sprintf("Could not read %s: %v. Nothing was stored.", upErr.File, upErr.Err)
		}
		return fmt.Sprintf("Error storing samples: %v", err)
	}
	return formatUploadResult(names, res)
}
