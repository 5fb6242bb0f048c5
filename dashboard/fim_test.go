package dashboard

import (
	"testing"

	"argus/wazuh"

	"github.com/stretchr/testify/assert"
)

func TestExtractFilename(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"unix path", "/etc/passwd", "passwd"},
		{"nested unix path", "/var/www/html/index.php", "index.php"},
		{"registry path", `HKEY_LOCAL_MACHINE\SOFTWARE\Microsoft\Run`, "Run"},
		{"registry root", "HKEY_LOCAL_MACHINE", "HKEY_LOCAL_MACHINE"},
		{"empty", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractFilename(tt.path))
		})
	}
}

func TestDetermineChangeType(t *testing.T) {
	tests := []struct {
		name     string
		syscheck map[string]interface{}
		rule     map[string]interface{}
		want     string
	}{
		{
			"perm attribute wins",
			map[string]interface{}{"changed_attributes": []interface{}{"perm"}},
			map[string]interface{}{"description": "File added to the system."},
			"permission",
		},
		{
			"ownership from uid",
			map[string]interface{}{"changed_attributes": []interface{}{"uid"}},
			nil,
			"ownership",
		},
		{
			"size change is modified",
			map[string]interface{}{"changed_attributes": []interface{}{"size"}},
			nil,
			"modified",
		},
		{
			"created from description",
			nil,
			map[string]interface{}{"description": "File added to the system."},
			"created",
		},
		{
			"deleted from description",
			nil,
			map[string]interface{}{"description": "File deleted."},
			"deleted",
		},
		{
			"default",
			nil,
			nil,
			"modified",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineChangeType(tt.syscheck, tt.rule))
		})
	}
}

func TestFIMSeverity(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		level float64
		want  string
	}{
		{"shadow file is critical", "/etc/shadow", 5, "critical"},
		{"registry SAM is critical", `HKEY_LOCAL_MACHINE\SAM\Domains`, 3, "critical"},
		{"etc path is high", "/etc/nginx/nginx.conf", 3, "high"},
		{"high rule level", "/home/user/notes.txt", 11, "high"},
		{"medium rule level", "/home/user/notes.txt", 7, "medium"},
		{"low otherwise", "/tmp/scratch", 3, "low"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fimSeverity(tt.path, tt.level))
		})
	}
}

func TestProcessFIMHit(t *testing.T) {
	hit := wazuh.Hit{
		ID: "fim-1",
		Source: map[string]interface{}{
			"@timestamp": "2024-06-01T10:00:00Z",
			"syscheck": map[string]interface{}{
				"path":               "/etc/passwd",
				"sha256_after":       "deadbeef",
				"uname_after":        "root",
				"size":               "2048",
				"changed_attributes": []interface{}{"mtime", "size"},
			},
			"rule": map[string]interface{}{
				"id":          "550",
				"level":       float64(7),
				"description": "Integrity checksum changed.",
			},
			"agent": map[string]interface{}{
				"name": "db-01",
				"ip":   "10.0.0.9",
				"os":   map[string]interface{}{"name": "Ubuntu"},
			},
		},
	}

	r := processFIMHit(hit)

	assert.Equal(t, "fim-1", r["id"])
	assert.Equal(t, "passwd", r["filename"])
	assert.Equal(t, "/etc/passwd", r["file_path"])
	assert.Equal(t, "modified", r["change_type"])
	assert.Equal(t, "critical", r["severity"])
	assert.Equal(t, "root", r["user"])
	assert.Equal(t, "deadbeef", r["file_hash"])
	assert.Equal(t, "Ubuntu", r["os_name"])
	assert.Equal(t, false, r["registry_path"])
}

func TestFIMHashFallsBackToMD5(t *testing.T) {
	r := processFIMHit(wazuh.Hit{Source: map[string]interface{}{
		"syscheck": map[string]interface{}{"path": "/tmp/f", "md5_after": "cafe"},
	}})
	assert.Equal(t, "cafe", r["file_hash"])
}

func TestFIMSummary(t *testing.T) {
	records := processFIMHits([]wazuh.Hit{
		{ID: "1", Source: map[string]interface{}{
			"syscheck": map[string]interface{}{"path": "/etc/shadow"},
			"agent":    map[string]interface{}{"name": "db-01"},
		}},
		{ID: "2", Source: map[string]interface{}{
			"syscheck": map[string]interface{}{"path": "/etc/nginx/nginx.conf"},
			"agent":    map[string]interface{}{"name": "db-01"},
		}},
		{ID: "3", Source: map[string]interface{}{
			"syscheck": map[string]interface{}{"path": "/tmp/scratch"},
			"rule":     map[string]interface{}{"level": float64(2)},
			"agent":    map[string]interface{}{"name": "web-01"},
		}},
	})

	s := fimSummary(records)

	assert.Equal(t, 3, s["total_files"])
	assert.Equal(t, 3, s["total_changes"])
	// One critical plus one high.
	assert.Equal(t, 2, s["suspicious_changes"])
	assert.Equal(t, 2, s["monitored_agents"])
	// One critical change docks two points.
	assert.Equal(t, "98%", s["integrity_score"])
}
