// Package hap implements the HTTP/JSON client for the HAP+ file-server API.
package hap

// LogonResponse is returned by POST /api/ad/logon.
type LogonResponse struct {
	IsValid    bool   `json:"isValid"`
	SiteName   string `json:"SiteName"`
	FirstName  string `json:"FirstName"`
	Username   string `json:"Username"`
	Token1     string `json:"Token1"`
	Token2     string `json:"Token2"`
	Token2Name string `json:"Token2Name"`
	Roles      string `json:"Roles"` // comma-separated
}

// Drive describes one entry from GET /api/myfiles/Drives.
type Drive struct {
	Name     string  `json:"Name"`
	Path     string  `json:"Path"`
	Space    float64 `json:"Space"` // percent used
	Writable bool    `json:"Writable"`
}

// Item describes one entry from GET /api/myfiles/Browse.
type Item struct {
	Name         string `json:"Name"`
	Type         string `json:"Type"` // "Directory" or "File"
	ModifiedTime string `json:"ModifiedTime"`
	Extension    string `json:"Extension"`
	Size         string `json:"Size"` // server-formatted display size
	Path         string `json:"Path"`
	Writable     bool   `json:"Writable"`
}

// TimetableEntry is the wire form of one timetable lesson from
// GET /api/timetable/LoadUser.
type TimetableEntry struct {
	Day    int    `json:"Day"` // 0 = Sunday
	Period string `json:"Period"`
	Start  string `json:"StartTime"` // "15:04"
	End    string `json:"EndTime"`   // "15:04"
}

// PasteRequest is the body for POST /api/myfiles/move and /api/myfiles/copy.
type PasteRequest struct {
	OldPath   string `json:"OldPath"`
	NewPath   string `json:"NewPath"`
	Overwrite bool   `json:"Overwrite"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
