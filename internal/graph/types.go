package graph

// Drive types reported by the server.
const (
	DriveTypePersonal = "personal"
	DriveTypeVirtual  = "virtual"
	DriveTypeProject  = "project"
)

// Space is a drive as listed by GET /me/drives, normalized from the API
// response.
type Space struct {
	ID         string
	Name       string
	DriveType  string
	OwnerID    string
	WebDAVURL  string
	QuotaTotal int64
	QuotaUsed  int64
	Trashed    bool
}

// SharedItem is one entry of GET /me/drive/sharedWithMe.
type SharedItem struct {
	ID          string
	Name        string
	RemoteID    string
	Synchronize bool
	Hidden      bool
}
