package prompt

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultAssets(t *testing.T) {
	a := DefaultAssets()
	if a.Template() == "" {
		t.Error("embedded template is empty")
	}
	if len(a.Dialogs()) == 0 {
		t.Error("embedded dialogs are empty")
	}

	// 예시 응답 자체가 파서로 10개 필드 모두 채워져야 한다
	dialogs := a.Dialogs()
	reply := dialogs[len(dialogs)-1].Parts[0].Text
	result, err := NewSectionParser().Parse(reply)
	if err != nil {
		t.Fatalf("embedded example reply does not parse: %v", err)
	}
	if result.Chinese.EmptyCount() != 0 || result.English.EmptyCount() != 0 {
		t.Errorf("embedded example has empty fields: %+v", result)
	}
}

func TestLoadAssetsFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, templateFile, "custom template")
	writeFile(t, dir, dialogsFile, `[{"role":"user","parts":[{"text":"q"}]},{"role":"model","parts":[{"text":"a"}]}]`)

	a := LoadAssets(dir)
	if a.Template() != "custom template" {
		t.Errorf("template = %q", a.Template())
	}
	if got := a.Dialogs(); len(got) != 2 || got[1].Parts[0].Text != "a" {
		t.Errorf("dialogs = %+v", got)
	}
}

func TestLoadAssetsFallsBack(t *testing.T) {
	defaults := DefaultAssets()

	tests := []struct {
		name    string
		dialogs string
	}{
		{"invalid json", `[{"role":`},
		{"empty list", `[]`},
		{"bad role", `[{"role":"system","parts":[{"text":"x"}]}]`},
		{"empty part", `[{"role":"user","parts":[{"text":"  "}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, templateFile, "   ")
			writeFile(t, dir, dialogsFile, tt.dialogs)

			a := LoadAssets(dir)
			if a.Template() != defaults.Template() {
				t.Error("blank template should fall back to the embedded one")
			}
			if len(a.Dialogs()) != len(defaults.Dialogs()) {
				t.Error("invalid dialogs should fall back to the embedded ones")
			}
		})
	}

	if a := LoadAssets(filepath.Join(t.TempDir(), "missing")); a.Template() != defaults.Template() {
		t.Error("missing dir should use embedded assets")
	}
}

func TestAssetsAreImmutable(t *testing.T) {
	a, err := NewAssets("tpl", []Dialog{{Role: "user", Parts: []DialogPart{{Text: "hi"}}}})
	if err != nil {
		t.Fatal(err)
	}
	d := a.Dialogs()
	d[0].Parts[0].Text = "mutated"
	if a.Dialogs()[0].Parts[0].Text != "hi" {
		t.Error("Dialogs should return a copy")
	}

	if _, err := NewAssets("", nil); err == nil {
		t.Error("empty template should be rejected")
	}
}
