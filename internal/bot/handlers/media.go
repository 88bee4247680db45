package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-telegram/bot"
)

const (
	fileDownloadTimeout = 30 * time.Second
	maxDownloadSize     = 10 << 20
)

var errFileTooLarge = errors.New("file exceeds download limit")

// downloadFile fetches a Telegram file by ID.
func downloadFile(ctx context.Context, b *bot.Bot, client *http.Client, fileID string) ([]byte, error) {
	if fileID == "" {
		return nil, errors.New("empty file ID")
	}

	ctx, cancel := context.WithTimeout(ctx, fileDownloadTimeout)
	defer cancel()

	file, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info from Telegram: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("empty file path returned for file ID %s", fileID)
	}
	if file.FileSize > maxDownloadSize {
		return nil, fmt.Errorf("%w: %d bytes", errFileTooLarge, file.FileSize)
	}

	// The link embeds the bot token and must never be logged.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, redactURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d downloading file %s", resp.StatusCode, fileID)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	if len(data) > maxDownloadSize {
		return nil, errFileTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("received empty file %s", fileID)
	}
	return data, nil
}

// redactURLError drops the request URL, which carries the bot token.
func redactURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
