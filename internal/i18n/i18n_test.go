package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedCatalogs(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "zh_cn"}, b.Languages())
	assert.True(t, b.Has("zh-CN"))
	assert.False(t, b.Has("fr"))
	assert.Equal(t, "简体中文", b.Catalog("zh_cn").Display)
	assert.Equal(t, "English", b.Catalog("fr").Display)
}

func TestCatalogsShareKeys(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	en := b.Catalog("en")
	zh := b.Catalog("zh_cn")
	for section, strs := range en.UI {
		for key := range strs {
			_, ok := zh.UI[section][key]
			assert.True(t, ok, "zh_cn missing %s.%s", section, key)
		}
	}
}

func TestLookupAndFallback(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "开始索引", b.Lookup("zh_cn", "INDEXING_PANEL", "BUTTON_START_INDEXING"))
	assert.Equal(t, "Start Indexing", b.Lookup("en", "INDEXING_PANEL", "BUTTON_START_INDEXING"))
	assert.Equal(t, "Start Indexing", b.Lookup("de", "INDEXING_PANEL", "BUTTON_START_INDEXING"))
	assert.Equal(t, "NO_SUCH_KEY", b.Lookup("en", "INDEXING_PANEL", "NO_SUCH_KEY"))
}

func TestFormat(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Successfully indexed 12 files",
		b.Format("en", "INDEXING_PANEL", "MESSAGE_INDEXING_SUCCESS", map[string]any{"count": 12}))
	assert.Equal(t, "正在处理: a.py (1/3)",
		b.Format("zh_cn", "INDEXING_PANEL", "STATUS_PROCESSING_FILE",
			map[string]any{"filename": "a.py", "current": 1, "total": 3}))
	assert.Equal(t, "An error occurred during analysis:\nboom",
		b.Format("en", "SYMBOL_ANALYZER", "MESSAGE_ANALYSIS_ERROR", map[string]any{"0": "boom"}))
}

func TestMatch(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	tests := map[string]string{
		"":                           "en",
		"zh_cn":                      "zh_cn",
		"zh-CN,zh;q=0.9,en;q=0.8":    "zh_cn",
		"en-US,en;q=0.9":             "en",
		"fr-FR":                      "en",
		"not a language ;;; q=wrong": "en",
	}
	for in, want := range tests {
		assert.Equal(t, want, b.Match(in), "Match(%q)", in)
	}
}

func TestLoadFSRequiresDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"l/zh_cn.toml": {Data: []byte("code = \"zh_cn\"\n[ui.A]\nB = \"c\"\n")},
	}
	_, err := LoadFS(fsys, "l")
	assert.Error(t, err)

	fsys["l/en.toml"] = &fstest.MapFile{Data: []byte("[ui.A]\nB = \"d\"\n")}
	fsys["l/README.md"] = &fstest.MapFile{Data: []byte("ignored")}
	b, err := LoadFS(fsys, "l")
	require.NoError(t, err)
	assert.Equal(t, "d", b.Lookup("en", "A", "B"))
	assert.Equal(t, "c", b.Lookup("zh_cn", "A", "B"))
}

func TestLoadFSRejectsInvalidTOML(t *testing.T) {
	fsys := fstest.MapFS{
		"l/en.toml": {Data: []byte("code = \n")},
	}
	_, err := LoadFS(fsys, "l")
	assert.Error(t, err)
}
