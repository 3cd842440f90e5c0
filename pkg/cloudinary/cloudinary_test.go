package cloudinary

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicIDSanitisesName(t *testing.T) {
	at := time.Date(2024, time.March, 12, 23, 30, 0, 0, time.FixedZone("BRT", -3*60*60))

	cases := map[string]string{
		"Syllabus week 3.pdf": "20240313-Syllabus-week-3-ab12cd34",
		"../notes.txt":        "20240313-notes-ab12cd34",
		"???.png":             "20240313-attachment-ab12cd34",
		"lab -- report.docx":  "20240313-lab-report-ab12cd34",
	}
	for name, expected := range cases {
		require.Equal(t, expected, PublicID(name, at, "ab12cd34"), name)
	}

	require.Equal(t, "20240313-notes", PublicID("notes.txt", at, ""))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)

	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/course/files/"}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "course/files", svc.folder)
}
