package notes

import (
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/cache"
)

// Status tracks moderation state of an uploaded note.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const (
	minSemester = 1
	maxSemester = 8
)

// Note models a shared document and its listing metadata.
type Note struct {
	NoteID           string  `gorm:"column:note_id;primaryKey;size:190;not null" json:"id"`
	Title            string  `gorm:"column:title;size:300;not null" json:"title"`
	Description      string  `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Branch           string  `gorm:"column:branch;size:32;not null;index:idx_notes_filter,priority:1" json:"branch"`
	Semester         int     `gorm:"column:semester;not null;index:idx_notes_filter,priority:2" json:"semester"`
	Subject          string  `gorm:"column:subject;size:190;not null;index:idx_notes_filter,priority:3" json:"subject"`
	FileKey          string  `gorm:"column:file_key;size:512;not null;uniqueIndex:idx_notes_file_key" json:"fileKey"`
	FileName         string  `gorm:"column:file_name;size:300;not null;default:''" json:"fileName"`
	FileSize         int64   `gorm:"column:file_size;not null;default:0" json:"fileSize"`
	FileSizeLabel    string  `gorm:"column:file_size_label;size:32;not null;default:''" json:"fileSizeLabel"`
	FileType         string  `gorm:"column:file_type;size:190;not null;default:''" json:"fileType"`
	CreatedBy        string  `gorm:"column:created_by;size:190;not null;index" json:"createdBy"`
	Status           Status  `gorm:"column:status;size:16;not null;default:'pending'" json:"status"`
	Views            int64   `gorm:"column:views;not null;default:0" json:"views"`
	Downloads        int64   `gorm:"column:downloads;not null;default:0" json:"downloads"`
	Likes            int64   `gorm:"column:likes;not null;default:0" json:"likes"`
	Rating           float64 `gorm:"column:rating;not null;default:0" json:"rating"`
	ExtractedText    string  `gorm:"column:extracted_text;type:text;not null;default:''" json:"-"`
	Summary          *string `gorm:"column:summary;type:text" json:"summary,omitempty"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null;index" json:"createdAt"`
	UpdatedAtSeconds int64   `gorm:"column:updated_at_s;not null" json:"updatedAt"`
	Author           *Author `gorm:"-" json:"author,omitempty"`
}

// Author is the uploader as shown next to a note.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// noteRow is a note joined with its uploader's user row.
type noteRow struct {
	Note
	AuthorName  string `gorm:"column:author_name"`
	AuthorEmail string `gorm:"column:author_email"`
}

func (r noteRow) withAuthor() Note {
	note := r.Note
	if r.AuthorName != "" || r.AuthorEmail != "" {
		note.Author = &Author{Name: r.AuthorName, Email: r.AuthorEmail}
	}
	return note
}

func notesFromRows(rows []noteRow) []Note {
	records := make([]Note, len(rows))
	for index := range rows {
		records[index] = rows[index].withAuthor()
	}
	return records
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Favorite marks a note as favourited by a user; (user_id, note_id) is unique.
type Favorite struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	NoteID           string `gorm:"column:note_id;primaryKey;size:190;not null;index"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Favorite) TableName() string {
	return "favourites"
}

// NoteView is a note as presented to one viewer at one moment.
type NoteView struct {
	Note
	IsFavourite          bool       `json:"isFavourite"`
	DownloadURL          string     `json:"downloadUrl,omitempty"`
	DownloadURLExpiresAt *time.Time `json:"downloadUrlExpiresAt,omitempty"`
}

// ListFilter narrows note listings; zero values mean "any".
type ListFilter struct {
	Branch   string
	Semester int
	Subject  string
}

func (f ListFilter) cacheFilter() cache.Filter {
	dimensions := cache.Filter{
		dimensionBranch:  f.Branch,
		dimensionSubject: f.Subject,
	}
	if f.Semester > 0 {
		dimensions[dimensionSemester] = strconv.Itoa(f.Semester)
	}
	return dimensions
}

// CreateInput describes a new note. Either Content or FileKey (a previously uploaded object
// under the owner's prefix) supplies the document.
type CreateInput struct {
	OwnerID     UserID
	Title       string
	Description string
	Branch      string
	Semester    int
	Subject     string
	FileName    string
	ContentType string
	Content     []byte
	FileKey     string
}

// UpdateInput carries optional metadata changes; nil fields are left unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	Branch      *string
	Semester    *int
	Subject     *string
}

// UploadTicket is a pre-signed upload destination.
type UploadTicket struct {
	FileKey   string    `json:"fileKey"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}
