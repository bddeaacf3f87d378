// Package imaging provides the pixel-level pieces of the enhancement pipeline.
//
// This package decodes image sources into editable pixel buffers, applies the
// named enhancement filters in place, encodes buffers back to JPEG data URIs,
// and samples colors for inspection. It knows nothing about sessions or the
// save endpoint; those live in the enhance package.
//
// # Pixel Buffers
//
// A PixelBuffer is a width x height grid of non-premultiplied RGBA pixels,
// four 8-bit channels per pixel, stored row-major with stride = width*4.
// The origin is always (0,0) at the top-left corner. Buffers never change
// dimensions after creation.
//
// # Filters
//
// ApplyFilter mutates a buffer in place using the current contents as input:
//   - brightness: R,G,B multiplied by 1.2, clamped to 255
//   - contrast: R,G,B mapped by 25.5*(c/255) + 128*(1-25.5/255)
//   - grayscale: R,G,B replaced by their unweighted average
//   - sharpen: |blur(c) - c| per channel, with a 1px Gaussian blur
//
// Filters do not compose from the original image. Applying brightness twice
// brightens twice. Only grayscale is idempotent.
//
// Every float result is clamped to [0,255] and rounded half-to-even, which is
// how a browser canvas stores values into its pixel array.
//
// # Supported Formats
//
// The Loader decodes PNG, JPEG, GIF, WebP and BMP from files, readers,
// http(s) URLs and base64 data URIs. A failed decode never yields a buffer.
//
// # Thread Safety
//
// PixelBuffer is not safe for concurrent mutation. The Loader is safe for
// concurrent use.
package imaging
