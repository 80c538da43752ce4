package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/libyal/go-vhdi"
	"github.com/libyal/go-vhdi/internal/util"
	"github.com/libyal/go-vhdi/internal/vhdio"
)

// openChain opens path and, when followParents is set and the image is
// differential, walks and binds every ancestor by resolving the stored
// parent filename hint relative to the child's own directory — the
// usual convention for locating a differencing disk's parent.
func openChain(path string, followParents bool) (*imageChain, error) {
	chain := &imageChain{}

	src, err := vhdio.NewFileSource(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	img, err := vhdi.Open(src, vhdi.OpenRead)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	chain.leaf = img
	chain.opened = append(chain.opened, img)
	chain.sources = append(chain.sources, src)

	if !followParents {
		return chain, nil
	}

	dir := filepath.Dir(path)
	current := img
	for {
		diskType, err := current.GetDiskType()
		if err != nil || diskType != vhdi.DiskTypeDifferential {
			break
		}
		name, err := current.GetUTF8ParentFilename()
		if err != nil || name == "" {
			break
		}
		parentPath := name
		if !filepath.IsAbs(parentPath) {
			parentPath = filepath.Join(dir, filepath.Base(name))
		}

		parentSrc, err := vhdio.NewFileSource(parentPath)
		if err != nil {
			// The parent isn't reachable from here; report what we have.
			break
		}
		parent, err := vhdi.Open(parentSrc, vhdi.OpenRead)
		if err != nil {
			parentSrc.Close()
			break
		}
		if err := current.SetParentFile(parent); err != nil {
			parent.Close()
			break
		}
		chain.opened = append(chain.opened, parent)
		chain.sources = append(chain.sources, parentSrc)
		dir = filepath.Dir(parentPath)
		current = parent
	}

	return chain, nil
}

func writeReport(out io.Writer, chain *imageChain, summaryOnly bool) error {
	img := chain.leaf

	fileType, err := img.GetFileType()
	if err != nil {
		return err
	}
	diskType, err := img.GetDiskType()
	if err != nil {
		return err
	}
	mediaSize, err := img.GetMediaSize()
	if err != nil {
		return err
	}
	sectorSize, err := img.GetBytesPerSector()
	if err != nil {
		return err
	}
	major, minor, err := img.GetFormatVersion()
	if err != nil {
		return err
	}
	identifier, err := img.GetIdentifier()
	if err != nil {
		return err
	}

	if summaryOnly {
		_, err := fmt.Fprintf(out, "%s %s disk, %s bytes, %s\n",
			fileType, diskType, util.FormatNumber(mediaSize), identifier)
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-18s%s\n", "Container:", fileType)
	fmt.Fprintf(&b, "%-18s%d.%d\n", "Format Version:", major, minor)
	fmt.Fprintf(&b, "%-18s%s\n", "Disk Type:", diskType)
	fmt.Fprintf(&b, "%-18s%s bytes\n", "Media Size:", util.FormatNumber(mediaSize))
	fmt.Fprintf(&b, "%-18s%d\n", "Bytes Per Sector:", sectorSize)
	fmt.Fprintf(&b, "%-18s%s\n", "Identifier:", identifier)

	if diskType == vhdi.DiskTypeDifferential {
		parentID, err := img.GetParentIdentifier()
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%-18s%s\n", "Parent Identifier:", parentID)
		if name, err := img.GetUTF8ParentFilename(); err == nil && name != "" {
			fmt.Fprintf(&b, "%-18s%s\n", "Parent Filename:", name)
		}
		fmt.Fprintf(&b, "%-18s%t\n", "Parent Bound:", len(chain.opened) > 1)
	}

	_, err = io.WriteString(out, b.String())
	return err
}
