package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageLayoutTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  ImageLayout
		to    ImageLayout
		legal bool
	}{
		{"undefined to transfer-dst", LayoutUndefined, LayoutTransferDst, true},
		{"undefined to shader-read-only", LayoutUndefined, LayoutShaderReadOnly, true},
		{"undefined to depth-attachment", LayoutUndefined, LayoutDepthAttachment, true},
		{"transfer-dst to shader-read-only", LayoutTransferDst, LayoutShaderReadOnly, true},
		{"transfer-dst to color-attachment", LayoutTransferDst, LayoutColorAttachment, true},
		{"transfer-dst to present", LayoutTransferDst, LayoutPresent, false},
		{"shader-read-only back to transfer-dst", LayoutShaderReadOnly, LayoutTransferDst, true},
		{"shader-read-only to undefined", LayoutShaderReadOnly, LayoutUndefined, false},
		{"shader-read-only to color-attachment", LayoutShaderReadOnly, LayoutColorAttachment, false},
		{"color-attachment to present", LayoutColorAttachment, LayoutPresent, true},
		{"color-attachment to shader-read-only", LayoutColorAttachment, LayoutShaderReadOnly, true},
		{"present back to color-attachment", LayoutPresent, LayoutColorAttachment, true},
		{"depth-attachment is terminal", LayoutDepthAttachment, LayoutShaderReadOnly, false},
		{"depth-attachment to transfer-dst", LayoutDepthAttachment, LayoutTransferDst, false},
		{"same layout is not a transition", LayoutShaderReadOnly, LayoutShaderReadOnly, false},
		{"nothing returns to undefined", LayoutTransferDst, LayoutUndefined, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := &Image{Layout: tt.from}
			assert.Equal(t, tt.legal, img.CanTransition(tt.to))
		})
	}
}
