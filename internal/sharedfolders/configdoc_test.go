package sharedfolders

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const foreignDoc = `a111:
  checkpoints: models/Stable-diffusion
  vae: models/VAE
comment_style: single
other_scalar: 42
`

func writeDoc(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "extra_model_paths.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func patchOnce(t *testing.T, path string, entries []SectionEntry) []byte {
	t.Helper()
	doc, err := LoadConfigDoc(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := doc.UpsertSection(path, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := doc.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	return b
}

func TestUpsertIdempotent(t *testing.T) {
	p := writeDoc(t, t.TempDir(), foreignDoc)
	entries := []SectionEntry{
		{Key: "checkpoints", Value: "/lib/Models/StableDiffusion"},
		{Key: "upscale_models", Value: "/lib/Models/ESRGAN\n/lib/Models/SwinIR"},
	}
	first := patchOnce(t, p, entries)
	second := patchOnce(t, p, entries)
	if !bytes.Equal(first, second) {
		t.Fatalf("second apply not byte-identical:\n--- first\n%s\n--- second\n%s", first, second)
	}
	if !strings.Contains(string(first), "a111:") {
		t.Fatalf("foreign section lost:\n%s", first)
	}
}

func TestApplyThenRemoveRestoresForeignSections(t *testing.T) {
	dir := t.TempDir()
	p := writeDoc(t, dir, foreignDoc)
	want := []byte(foreignDoc)

	patchOnce(t, p, []SectionEntry{{Key: "checkpoints", Value: "/lib/ckpt"}})

	doc, err := LoadConfigDoc(p)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !doc.RemoveSection() {
		t.Fatalf("expected reserved section present")
	}
	if err := doc.Save(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("remove did not restore foreign content:\n--- want\n%s\n--- got\n%s", want, got)
	}
	// Boundary cases: one nested mapping and one scalar section survive.
	if !strings.Contains(string(got), "checkpoints: models/Stable-diffusion") {
		t.Fatalf("nested mapping section damaged:\n%s", got)
	}
	if !strings.Contains(string(got), "other_scalar: 42") {
		t.Fatalf("scalar section damaged:\n%s", got)
	}
}

func TestRoundTripKeepsForeignIndentWidth(t *testing.T) {
	// Packages write their config with whatever indent they like; a
	// patch-then-remove cycle must hand the file back formatted as found.
	const wideDoc = "a111:\n" +
		"    checkpoints: /models/ckpt\n" +
		"    vae: /models/vae\n" +
		"scalar_section: enabled\n"
	p := writeDoc(t, t.TempDir(), wideDoc)

	applied := patchOnce(t, p, []SectionEntry{{Key: "checkpoints", Value: "/lib/ckpt"}})
	if !strings.Contains(string(applied), "    checkpoints: /models/ckpt") {
		t.Fatalf("apply reformatted foreign section:\n%s", applied)
	}

	doc, err := LoadConfigDoc(p)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !doc.RemoveSection() {
		t.Fatalf("expected reserved section present")
	}
	if err := doc.Save(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, []byte(wideDoc)) {
		t.Fatalf("apply+remove did not restore original bytes:\n--- want\n%s\n--- got\n%s", wideDoc, got)
	}
}

func TestUpsertRejectsNonMappingReservedSection(t *testing.T) {
	p := writeDoc(t, t.TempDir(), "keep: me\n"+ReservedSection+": just-a-string\n")
	before, _ := os.ReadFile(p)
	doc, err := LoadConfigDoc(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	err = doc.UpsertSection(p, []SectionEntry{{Key: "k", Value: "v"}})
	if err == nil || !IsInvalidExternalConfig(err) {
		t.Fatalf("expected invalid-config error, got %v", err)
	}
	after, _ := os.ReadFile(p)
	if !bytes.Equal(before, after) {
		t.Fatalf("file must be untouched on abort")
	}
}

func TestLoadAbsentAndUnparsable(t *testing.T) {
	dir := t.TempDir()
	// absent
	doc, err := LoadConfigDoc(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("absent: %v", err)
	}
	if !doc.Empty() {
		t.Fatalf("absent file should give empty doc")
	}
	// unparsable
	p := writeDoc(t, dir, ":\n\t- not yaml {{{")
	doc, err = LoadConfigDoc(p)
	if err != nil {
		t.Fatalf("unparsable: %v", err)
	}
	if !doc.Empty() {
		t.Fatalf("unparsable file should give empty doc")
	}
}

func TestRemoveAbsentSectionIsNoop(t *testing.T) {
	p := writeDoc(t, t.TempDir(), foreignDoc)
	doc, err := LoadConfigDoc(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.RemoveSection() {
		t.Fatalf("expected no reserved section")
	}
}

func TestReservedSectionNormalizedLast(t *testing.T) {
	// Reserved section starts in the middle; after a patch it must sit at
	// the end with foreign order untouched.
	content := "first: 1\n" + ReservedSection + ":\n  old: x\nlast: 2\n"
	p := writeDoc(t, t.TempDir(), content)
	out := string(patchOnce(t, p, []SectionEntry{{Key: "new", Value: "y"}}))
	iFirst := strings.Index(out, "first:")
	iLast := strings.Index(out, "last:")
	iRes := strings.Index(out, ReservedSection+":")
	if !(iFirst < iLast && iLast < iRes) {
		t.Fatalf("expected reserved section normalized to the end:\n%s", out)
	}
	if !strings.Contains(out, "old: x") {
		t.Fatalf("existing reserved entries must survive upsert:\n%s", out)
	}
}
