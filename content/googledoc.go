package content

import (
	"context"
	"fmt"
	"io/ioutil"
	"strings"

	"google.golang.org/api/drive/v3"
)

// FetchGoogleDoc exports a Google Doc as plain text using the Drive API
func FetchGoogleDoc(ctx context.Context, driveClient *drive.Service, docID string) (string, error) {
	resp, err := driveClient.Files.Export(docID, "text/plain").Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("error in file export api call: %w", err)
	}
	defer resp.Body.Close()

	buf, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading exported doc from response: %w", err)
	}

	// plain text exports start with a byte order mark
	return strings.TrimPrefix(string(buf), "\ufeff"), nil
}

// LoadGoogleDoc fetches and parses a Google Doc
func LoadGoogleDoc(ctx context.Context, driveClient *drive.Service, docID string) (*Document, error) {
	text, err := FetchGoogleDoc(ctx, driveClient, docID)
	if err != nil {
		return nil, err
	}
	return Parse(text)
}
