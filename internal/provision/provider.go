// AngelaMos | 2026
// provider.go

package provision

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelamos/tenfold/internal/core"
)

// DriveProvider is the black-box storage integration. The real SDK call
// shapes are out of scope; the funnel only needs these three verbs.
type DriveProvider interface {
	CreateFolder(
		ctx context.Context,
		accessToken string,
		name string,
	) (string, error)
	ShareWithOwner(
		ctx context.Context,
		accessToken string,
		folderID string,
		email string,
	) error
	UploadReadme(
		ctx context.Context,
		accessToken string,
		folderID string,
		content []byte,
	) error
}

// MockDrive is the development provider selected by provider.drive_mock.
type MockDrive struct {
	FailCreate bool
	FailUpload bool
}

func NewMockDrive() *MockDrive {
	return &MockDrive{}
}

func (m *MockDrive) CreateFolder(
	ctx context.Context,
	accessToken string,
	name string,
) (string, error) {
	if m.FailCreate {
		return "", fmt.Errorf("mock create folder: %w", core.ErrUpstreamProvider)
	}
	return "drive-" + uuid.NewString(), nil
}

func (m *MockDrive) ShareWithOwner(
	ctx context.Context,
	accessToken string,
	folderID string,
	email string,
) error {
	return nil
}

func (m *MockDrive) UploadReadme(
	ctx context.Context,
	accessToken string,
	folderID string,
	content []byte,
) error {
	if m.FailUpload {
		return fmt.Errorf("mock upload readme: %w", core.ErrUpstreamProvider)
	}
	return nil
}
