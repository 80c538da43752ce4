package vhdi

import "github.com/libyal/go-vhdi/internal/vhdierr"

// SetParentFile binds an already-open differential image to its parent.
// The child must be DIFFERENTIAL; the parent's identifier must
// byte-equal the child's recorded parent identifier. On mismatch the
// child is left unmodified and ErrParentIdentifierMismatch is returned.
func (img *Image) SetParentFile(parent *Image) error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if err := img.requireOpenForRead(); err != nil {
		return err
	}
	if img.diskType != DiskTypeDifferential {
		return vhdierr.New(vhdierr.InvalidArgument, "vhdi: set_parent_file: not a differential disk")
	}

	parentID, err := parent.GetIdentifier()
	if err != nil {
		return err
	}
	if !img.hasParentIdentifier || !img.parentIdentifier.Equal(parentID) {
		return vhdierr.New(vhdierr.ParentIdentifierMismatch, "vhdi: set_parent_file")
	}

	img.parent = parent
	return nil
}
