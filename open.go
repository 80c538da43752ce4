package vhdi

import (
	"github.com/libyal/go-vhdi/internal/bat"
	"github.com/libyal/go-vhdi/internal/cache"
	"github.com/libyal/go-vhdi/internal/header"
	"github.com/libyal/go-vhdi/internal/trace"
	"github.com/libyal/go-vhdi/internal/vhdierr"
	"github.com/libyal/go-vhdi/internal/vhdio"
)

const vhdFooterRecordSize = 512

// detectAndOpen distinguishes VHD from VHDX by signature: read the
// first 8 bytes; if "vhdxfile", it's VHDX; otherwise require
// file_size >= 512 and check for "conectix" at file_size-512.
func detectAndOpen(src vhdio.Source) (*Image, error) {
	isVHDX, err := header.VerifyVHDXSignature(src)
	if err != nil {
		return nil, err
	}
	if isVHDX {
		return openVHDX(src)
	}

	size, err := src.Size()
	if err != nil {
		return nil, vhdierr.Wrap(vhdierr.IO, "vhdi: stat source", err)
	}
	if size < vhdFooterRecordSize {
		return nil, vhdierr.New(vhdierr.UnsupportedSignature, "vhdi: file too small for either format")
	}

	footer, err := header.ParseVHDFooter(src, size-vhdFooterRecordSize)
	if err != nil {
		return nil, err
	}
	return openVHD(src, footer, size)
}

func vhdDiskType(d header.VHDDiskType) DiskType {
	switch d {
	case header.VHDFixed:
		return DiskTypeFixed
	case header.VHDDifferential:
		return DiskTypeDifferential
	default:
		return DiskTypeDynamic
	}
}

func openVHD(src vhdio.Source, footer *header.VHDFooter, fileSize int64) (*Image, error) {
	img := &Image{
		source:         src,
		fileType:       FileTypeVHD,
		diskType:       vhdDiskType(footer.DiskType),
		formatMajor:    uint16(footer.FormatVersion >> 16),
		formatMinor:    uint16(footer.FormatVersion & 0xFFFF),
		mediaSize:      footer.MediaSize,
		bytesPerSector: 512,
		identifier:     footer.Identifier,
	}

	if footer.DiskType == header.VHDFixed {
		trace.Event("open", "vhd fixed disk", nil)
		return img, nil
	}

	dyn, err := header.ParseVHDDynamicHeader(src, footer.NextOffset)
	if err != nil {
		return nil, err
	}
	img.blockSize = dyn.BlockSize
	img.parentIdentifier = dyn.ParentIdentifier
	img.hasParentIdentifier = footer.DiskType == header.VHDDifferential
	img.parentFilenameUTF16 = dyn.ParentFilename
	img.parentFilenameBE = true

	table, err := bat.New(bat.VHD, footer.DiskType == header.VHDDifferential, dyn.BlockTableOffset, dyn.NumberOfBlocks, dyn.BlockSize, 512)
	if err != nil {
		return nil, err
	}
	img.bat = table
	img.cache = cache.New()

	return img, nil
}

func vhdxDiskType(d header.VHDXDiskType) DiskType {
	switch d {
	case header.VHDXFixed:
		return DiskTypeFixed
	case header.VHDXDifferential:
		return DiskTypeDifferential
	default:
		return DiskTypeDynamic
	}
}

func openVHDX(src vhdio.Source) (*Image, error) {
	imgHdr, err := header.ParseVHDXImageHeader(src)
	if err != nil {
		return nil, err
	}

	regionTable, err := header.ParseVHDXRegionTable(src)
	if err != nil {
		return nil, err
	}

	metadataRegion, ok := regionTable.Lookup(header.RegionMetadata)
	if !ok {
		return nil, vhdierr.New(vhdierr.ValueMissing, "vhdx: metadata_table region entry")
	}
	metadataTable, err := header.ParseVHDXMetadataTable(src, metadataRegion.DataOffset)
	if err != nil {
		return nil, err
	}

	fileParamsData, ok, err := metadataTable.ReadItem(src, header.ItemFileParameters)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vhdierr.New(vhdierr.ValueMissing, "vhdx: file_parameters metadata item")
	}
	fileParams, err := header.ParseFileParameters(fileParamsData)
	if err != nil {
		return nil, err
	}

	sectorSizeData, ok, err := metadataTable.ReadItem(src, header.ItemLogicalSectorSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vhdierr.New(vhdierr.ValueMissing, "vhdx: logical_sector_size metadata item")
	}
	sectorSize, err := header.ParseLogicalSectorSize(sectorSizeData)
	if err != nil {
		return nil, err
	}

	diskSizeData, ok, err := metadataTable.ReadItem(src, header.ItemVirtualDiskSize)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vhdierr.New(vhdierr.ValueMissing, "vhdx: virtual_disk_size metadata item")
	}
	diskSize, err := header.ParseVirtualDiskSize(diskSizeData)
	if err != nil {
		return nil, err
	}

	// virtual_disk_identifier is a required metadata item, but the
	// image's exposed identifier is image_header.data_write_identifier
	// (matching libvhdi_file_get_identifier); we still validate its
	// presence and shape since every VHDX file must carry one.
	vdiData, ok, err := metadataTable.ReadItem(src, header.ItemVirtualDiskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vhdierr.New(vhdierr.ValueMissing, "vhdx: virtual_disk_identifier metadata item")
	}
	if _, err := header.ParseVirtualDiskIdentifier(vdiData); err != nil {
		return nil, err
	}

	img := &Image{
		source:         src,
		fileType:       FileTypeVHDX,
		diskType:       vhdxDiskType(fileParams.DiskType),
		formatMajor:    imgHdr.FormatVersion,
		formatMinor:    0,
		mediaSize:      diskSize,
		bytesPerSector: sectorSize,
		blockSize:      fileParams.BlockSize,
		identifier:     imgHdr.Identifier,
	}

	if fileParams.DiskType == header.VHDXFixed {
		trace.Event("open", "vhdx fixed disk", nil)
		return img, nil
	}

	batRegion, ok := regionTable.Lookup(header.RegionBAT)
	if !ok {
		return nil, vhdierr.New(vhdierr.ValueMissing, "vhdx: block_allocation_table region entry")
	}
	numberOfEntries := uint32((diskSize + fileParams.BlockSize - 1) / fileParams.BlockSize)
	differential := fileParams.DiskType == header.VHDXDifferential

	table, err := bat.New(bat.VHDX, differential, batRegion.DataOffset, numberOfEntries, fileParams.BlockSize, int64(sectorSize))
	if err != nil {
		return nil, err
	}
	img.bat = table
	img.cache = cache.New()

	if differential {
		locatorData, ok, err := metadataTable.ReadItem(src, header.ItemParentLocator)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, vhdierr.New(vhdierr.ValueMissing, "vhdx: parent_locator metadata item")
		}
		locator, err := header.ParseVHDXParentLocator(locatorData)
		if err != nil {
			return nil, err
		}
		if !locator.IsVHDXType() {
			return nil, vhdierr.New(vhdierr.UnsupportedValue, "vhdx: parent_locator type identifier")
		}

		linkage, ok := locator.Lookup("parent_linkage")
		if !ok {
			return nil, vhdierr.New(vhdierr.ValueMissing, "vhdx: parent_locator parent_linkage key")
		}
		parentID, err := parseParentLinkage(linkage)
		if err != nil {
			return nil, err
		}
		img.parentIdentifier = parentID
		img.hasParentIdentifier = true

		if path, ok := locator.ResolvePath(); ok {
			img.parentFilenameUTF16 = utf16LEFromString(path)
			img.parentFilenameBE = false
		}
	}

	return img, nil
}
