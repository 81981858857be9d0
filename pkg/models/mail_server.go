package models

import (
	"strconv"
	"strings"
	"time"
)

// MailServer represents one IMAP endpoint the pipeline searches.
// Credentials are provisioned by the admin surface; the pipeline only reads them.
type MailServer struct {
	ID        int64     `db:"id"`
	Host      string    `db:"host"`
	Port      int       `db:"port"`
	Username  string    `db:"username"`
	Password  string    `db:"password"` // AES-256-GCM encrypted, base64
	Folders   string    `db:"folders"`  // comma-separated list, e.g. "INBOX,Junk"
	Pool      string    `db:"pool"`     // "main" or "public"
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FolderList splits the configured folder string into a clean list.
// Empty entries are dropped; an empty list defaults to INBOX.
func (s *MailServer) FolderList() []string {
	var folders []string
	for _, f := range strings.Split(s.Folders, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			folders = append(folders, f)
		}
	}
	if len(folders) == 0 {
		folders = []string{"INBOX"}
	}
	return folders
}

// Addr returns the host:port dial address. Port 0 defaults to IMAPS.
func (s *MailServer) Addr() string {
	port := s.Port
	if port == 0 {
		port = 993
	}
	return s.Host + ":" + strconv.Itoa(port)
}
