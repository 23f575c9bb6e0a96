package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderTemplate_SubstitutesAllPlaceholders(t *testing.T) {
	bindings := map[string]string{
		"PROXY_URL": "/proxy/s1",
		"HOST":      "localhost",
		"PORT":      "34012",
	}
	out, err := RenderTemplate("${PROXY_URL} on ${HOST}:${PORT}", bindings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "/proxy/s1 on localhost:34012" {
		t.Errorf("got %q", out)
	}
	if strings.Contains(out, "${") {
		t.Errorf("unresolved placeholder left in %q", out)
	}
}

func TestRenderTemplate_ViewerURL(t *testing.T) {
	out, err := RenderTemplate("${PROXY_URL}/?bam=${BAM_URL}", map[string]string{
		"PROXY_URL": "/proxy/s1",
		"BAM_URL":   "http://localhost/tmp/bamfile.bam",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "/proxy/s1/?bam=http://localhost/tmp/bamfile.bam" {
		t.Errorf("got %q", out)
	}
}

func TestRenderTemplate_MissingPlaceholder(t *testing.T) {
	_, err := RenderTemplate("${PROXY_URL}/?bam=${BAM_URL}", map[string]string{
		"PROXY_URL": "/proxy/s1",
	})
	var tmplErr *TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
	if tmplErr.Placeholder != "BAM_URL" {
		t.Errorf("expected BAM_URL, got %q", tmplErr.Placeholder)
	}
}

func TestRenderTemplate_NoPlaceholders(t *testing.T) {
	out, err := RenderTemplate("http://localhost:3000/", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "http://localhost:3000/" {
		t.Errorf("got %q", out)
	}
}

func TestRenderTemplate_LiteralDollarLeftAlone(t *testing.T) {
	out, err := RenderTemplate("cost is $5, path ${P}", map[string]string{"P": "/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "cost is $5, path /x" {
		t.Errorf("got %q", out)
	}
}
