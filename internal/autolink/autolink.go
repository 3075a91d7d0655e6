// Package autolink rewrites loom: scheme links in rendered markup to the
// URLs their targets are mounted at.
//
// href="loom:page/shop.cart" becomes the mount path of the shop.cart page;
// src="loom:resource/site-css" becomes the mount path of that shared
// resource. Links whose target is not mounted pass through untouched.
package autolink

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

const (
	pageScheme     = "loom:page/"
	resourceScheme = "loom:resource/"
)

// linkAttributes are the tag attributes eligible for rewriting.
var linkAttributes = map[string]bool{
	"href":   true,
	"src":    true,
	"action": true,
}

// Resolver supplies mounted URLs for page names and resource keys.
type Resolver interface {
	PageURL(name string) (string, bool)
	ResourceURL(key string) (string, bool)
}

// Rewrite returns markup with loom: links replaced by mounted URLs.
//
// Only tags that actually change are re-rendered; everything else passes
// through byte for byte. Rewrite expects HTML and must not be fed other
// content types.
func Rewrite(markup []byte, resolver Resolver) ([]byte, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if !bytes.Contains(markup, []byte("loom:")) {
		return markup, nil
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(markup))
	var out bytes.Buffer
	out.Grow(len(markup))

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			if tokenizer.Err() == io.EOF {
				return out.Bytes(), nil
			}
			return nil, fmt.Errorf("tokenize markup: %w", tokenizer.Err())
		}

		raw := tokenizer.Raw()
		if tokenType == html.StartTagToken || tokenType == html.SelfClosingTagToken {
			token := tokenizer.Token()
			if rewriteToken(&token, resolver) {
				out.WriteString(token.String())
				continue
			}
		}
		out.Write(raw)
	}
}

// rewriteToken reports whether any attribute of the token was rewritten.
func rewriteToken(token *html.Token, resolver Resolver) bool {
	changed := false
	for i, attr := range token.Attr {
		if attr.Namespace != "" || !linkAttributes[attr.Key] {
			continue
		}
		if rewritten, ok := resolveLink(attr.Val, resolver); ok {
			token.Attr[i].Val = rewritten
			changed = true
		}
	}
	return changed
}

// resolveLink maps one loom: link value to its mounted URL.
func resolveLink(value string, resolver Resolver) (string, bool) {
	var target string
	var lookup func(string) (string, bool)
	switch {
	case strings.HasPrefix(value, pageScheme):
		target = value[len(pageScheme):]
		lookup = resolver.PageURL
	case strings.HasPrefix(value, resourceScheme):
		target = value[len(resourceScheme):]
		lookup = resolver.ResourceURL
	default:
		return "", false
	}

	// Carry any query or fragment over to the mounted URL.
	suffix := ""
	if idx := strings.IndexAny(target, "?#"); idx >= 0 {
		suffix = target[idx:]
		target = target[:idx]
	}
	if target == "" {
		return "", false
	}

	url, ok := lookup(target)
	if !ok {
		return "", false
	}
	return url + suffix, true
}
