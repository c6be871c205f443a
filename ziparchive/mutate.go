/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package ziparchive

import (
	"archive/zip"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	liberr "github.com/nabbar/parazip/errors"
)

// stdlib archive/zip has no in-place mutation: every bulk rename, move, or
// delete is implemented by rebuilding the archive into a sibling temp file
// entry-by-entry (renaming/filtering as each source entry is copied) and
// atomically replacing the original on success. (Archive.Close, by
// contrast, finishes the file it was created on in place.)

// RenameMapper decides, for each source entry name, the name it should
// carry in the rebuilt archive. Returning ("", false, _) drops the entry.
// A non-empty warn return is a non-fatal note the caller should surface
// without affecting renamed/dropped counts (spec §8: renaming a child to
// the root can leave it with an empty name, which is skipped rather than
// written as a nameless entry).
type RenameMapper func(entryName string) (newName string, keep bool, warn string)

// RenamePrefix renames every entry under oldPrefix (a directory path, or
// "" for the whole tree) so that it instead sits under newPrefix,
// matching directory-prefix semantics (spec §4.9): "foo/" renamed to
// "bar/" moves every descendant of foo/. A descendant whose computed name
// would be empty (the directory entry itself, renamed to the archive
// root) is left under its original name and reported as a warning rather
// than written out nameless.
func RenamePrefix(oldPrefix, newPrefix string) RenameMapper {
	return func(entryName string) (string, bool, string) {
		if oldPrefix == "" {
			if newPrefix+entryName == "" {
				return entryName, true, "entry " + entryName + " would rename to an empty path; left unchanged"
			}
			return newPrefix + entryName, true, ""
		}
		if !strings.HasSuffix(oldPrefix, "/") {
			// oldPrefix names a single (non-directory) entry: spec §4.9
			// requires an exact match here, not a prefix match, so
			// renaming "report.txt" never also catches "report.txt.bak".
			if entryName != oldPrefix {
				return entryName, true, ""
			}
			if newPrefix == "" {
				return entryName, true, "entry " + entryName + " would rename to an empty path; left unchanged"
			}
			return newPrefix, true, ""
		}
		if entryName == strings.TrimSuffix(oldPrefix, "/") || strings.HasPrefix(entryName, oldPrefix) {
			newName := newPrefix + strings.TrimPrefix(entryName, oldPrefix)
			if newName == "" {
				return entryName, true, "entry " + entryName + " would rename to an empty path; left unchanged"
			}
			return newName, true, ""
		}
		return entryName, true, ""
	}
}

// DeletePrefix drops every entry under prefix (or every entry if prefix is
// "").
func DeletePrefix(prefix string) RenameMapper {
	return func(entryName string) (string, bool, string) {
		if prefix == "" {
			return "", false, ""
		}
		if !strings.HasSuffix(prefix, "/") {
			// Same non-directory exact-match rule as RenamePrefix: deleting
			// "report.txt" must not also drop "report.txt.bak".
			if entryName == prefix {
				return "", false, ""
			}
			return entryName, true, ""
		}
		if entryName == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(entryName, prefix) {
			return "", false, ""
		}
		return entryName, true, ""
	}
}

// basename returns the final path segment of an archive entry name, with
// any trailing '/' (directory marker) stripped first — spec §4.9's
// "target_base + basename(source)".
func basename(entryName string) string {
	trimmed := strings.TrimSuffix(entryName, "/")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// MovePrefix renames every entry under sourcePrefix so it sits under
// targetBase+basename(sourcePrefix) instead, per spec §4.9's Move: the
// target base must be empty or end with '/'.
func MovePrefix(sourcePrefix, targetBase string) RenameMapper {
	newPrefix := targetBase + basename(sourcePrefix)
	if strings.HasSuffix(sourcePrefix, "/") || sourcePrefix == "" {
		newPrefix += "/"
	}
	return RenamePrefix(sourcePrefix, newPrefix)
}

// composeMappers chains mappers in order: the first one that reports a
// renamed (non-identity) result for a given entry wins; if none matches,
// the entry passes through unchanged, unless any mapper dropped it. Only
// the first non-empty warning returned along the way is kept.
func composeMappers(mappers []RenameMapper) RenameMapper {
	return func(entryName string) (string, bool, string) {
		name := entryName
		var warn string
		for _, m := range mappers {
			n, keep, w := m(entryName)
			if !keep {
				return "", false, w
			}
			if w != "" && warn == "" {
				warn = w
			}
			if n != entryName && name == entryName {
				name = n
			}
		}
		return name, true, warn
	}
}

// Rebuild applies mapper to every entry of the archive at srcPath,
// writing the result to a temp file beside it and atomically replacing
// srcPath on success. Entries are copied byte-for-byte via CreateRaw
// (no re-compression), so rebuilding is proportional to archive size, not
// entry count times average compression cost.
// Rebuild's return is (renamed, dropped, warnings, err): renamed counts
// entries the mapper kept under a different name, dropped counts entries
// the mapper removed — together these let Delete report an affected count
// and Rename/MoveEntries report how many entries actually moved (spec
// §6's "rename/move/delete returning the count of affected entries").
// warnings carries every non-fatal note a mapper raised along the way
// (spec §8: a rename-to-root child left under its original name).
func Rebuild(srcPath, password string, mapper RenameMapper) (renamed, dropped int, warnings []string, rerr liberr.Error) {
	return rebuildCancellable(srcPath, password, mapper, nil)
}

func rebuildCancellable(srcPath, password string, mapper RenameMapper, cancelled *int32) (renamed, dropped int, warnings []string, rerr liberr.Error) {
	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return 0, 0, nil, ErrorOpenArchive.ErrorParent(err)
	}
	defer func() { _ = zr.Close() }()

	tmpPath := srcPath + ".rebuild.tmp"
	out, cerr := os.Create(tmpPath)
	if cerr != nil {
		return 0, 0, nil, ErrorOpenArchive.ErrorParent(cerr)
	}
	zw := zip.NewWriter(out)

	seen := make(map[string]bool)

	for _, f := range zr.File {
		if cancelled != nil && atomic.LoadInt32(cancelled) != 0 {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(tmpPath)
			return 0, 0, nil, ErrorCancelled.Error(nil)
		}
		newName, keep, warn := mapper(f.Name)
		if warn != "" {
			warnings = append(warnings, warn)
		}
		if !keep {
			dropped++
			continue
		}
		if err := rejectMalicious(newName); err != nil {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(tmpPath)
			return 0, 0, nil, err
		}
		if seen[newName] {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(tmpPath)
			return 0, 0, nil, ErrorEntryExists.Error(nil)
		}
		seen[newName] = true
		if newName != f.Name {
			renamed++
		}

		if err := copyRawEntry(zw, f, newName); err != nil {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(tmpPath)
			return 0, 0, nil, err
		}
	}

	if err := zw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return 0, 0, nil, ErrorCloseArchive.ErrorParent(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, 0, nil, ErrorCloseArchive.ErrorParent(err)
	}

	if err := os.Rename(tmpPath, srcPath); err != nil {
		_ = os.Remove(tmpPath)
		return 0, 0, nil, ErrorIO.ErrorParent(err)
	}
	return renamed, dropped, warnings, nil
}

func copyRawEntry(zw *zip.Writer, f *zip.File, newName string) liberr.Error {
	raw, err := f.OpenRaw()
	if err != nil {
		return ErrorIO.ErrorParent(err)
	}

	hdr := f.FileHeader
	hdr.Name = newName

	w, err := zw.CreateRaw(&hdr)
	if err != nil {
		return ErrorIO.ErrorParent(err)
	}
	if _, err := io.Copy(w, raw); err != nil {
		return ErrorIO.ErrorParent(err)
	}
	return nil
}

// Delete removes every entry under entryPath (or the single entry named
// entryPath) from the archive at srcPath, erroring with ErrorEntryNotFound
// if nothing matched. Returns the number of entries removed.
func Delete(srcPath, entryPath string) (affected int, err liberr.Error) {
	if err := entryMustExist(srcPath, entryPath); err != nil {
		return 0, err
	}
	_, dropped, _, rerr := Rebuild(srcPath, "", DeletePrefix(entryPath))
	return dropped, rerr
}

// Rename moves every entry under oldPath to sit under newPath. Renaming an
// entry to itself is a no-op success (spec §8: "rename idempotence").
// Returns the number of entries actually renamed.
func Rename(srcPath, oldPath, newPath string) (affected int, err liberr.Error) {
	if oldPath == newPath {
		return 0, entryMustExist(srcPath, oldPath)
	}
	if err := entryMustExist(srcPath, oldPath); err != nil {
		return 0, err
	}
	renamed, _, _, rerr := Rebuild(srcPath, "", RenamePrefix(oldPath, newPath))
	return renamed, rerr
}

// RemoveEntries deletes every entry named or prefixed by one of entryPaths
// in a single rebuild pass. Every entryPaths member must resolve to at
// least one archive entry or the whole operation fails with
// ErrorEntryNotFound and the archive is left untouched. Returns the total
// number of entries removed.
func RemoveEntries(srcPath string, entryPaths []string) (affected int, err liberr.Error) {
	for _, p := range entryPaths {
		if err := entryMustExist(srcPath, p); err != nil {
			return 0, err
		}
	}
	mappers := make([]RenameMapper, len(entryPaths))
	for i, p := range entryPaths {
		mappers[i] = DeletePrefix(p)
	}
	_, dropped, _, rerr := Rebuild(srcPath, "", composeMappers(mappers))
	return dropped, rerr
}

// MoveEntries renames every entryPaths member to sit under
// newBase+basename(entryPath), per spec §4.9's Move. newBase must be
// empty or end with '/'. Returns the number of entries actually moved.
func MoveEntries(srcPath string, entryPaths []string, newBase string) (affected int, err liberr.Error) {
	if newBase != "" && !strings.HasSuffix(newBase, "/") {
		return 0, ErrorMalformedBase.Error(nil)
	}
	for _, p := range entryPaths {
		if err := entryMustExist(srcPath, p); err != nil {
			return 0, err
		}
	}
	mappers := make([]RenameMapper, len(entryPaths))
	for i, p := range entryPaths {
		mappers[i] = MovePrefix(p, newBase)
	}
	renamed, _, _, rerr := Rebuild(srcPath, "", composeMappers(mappers))
	return renamed, rerr
}

func entryMustExist(srcPath, entryPath string) liberr.Error {
	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return ErrorOpenArchive.ErrorParent(err)
	}
	defer func() { _ = zr.Close() }()

	if entryPath != "" && !strings.HasSuffix(entryPath, "/") {
		for _, f := range zr.File {
			if f.Name == entryPath {
				return nil
			}
		}
		return ErrorEntryNotFound.Error(nil)
	}

	trimmed := strings.TrimSuffix(entryPath, "/")
	for _, f := range zr.File {
		if entryPath == "" || f.Name == trimmed || strings.HasPrefix(f.Name, entryPath) {
			return nil
		}
	}
	return ErrorEntryNotFound.Error(nil)
}

// MutationTask adapts one bulk rename/move/delete rebuild into the
// task package's Runnable shape (spec §4.10: rename_entry_async,
// move_entries_async, remove_entries_async all deliver a single terminal
// event through the same task surface zip_dirs_async/unzip_to_dir_async
// use).
type MutationTask struct {
	srcPath string
	run     func(cancelled *int32) (int, []string, liberr.Error)

	// Affected is the number of entries the mutation touched, valid after
	// Run returns successfully (spec §6: rename/move/delete report a count).
	Affected int

	cancelled int32
	warnings  []string
	errOnce   sync.Once
	err       liberr.Error
}

// NewRenameTask builds a MutationTask that performs Rename.
func NewRenameTask(srcPath, oldPath, newPath string) *MutationTask {
	return &MutationTask{srcPath: srcPath, run: func(cancelled *int32) (int, []string, liberr.Error) {
		if oldPath == newPath {
			return 0, nil, entryMustExist(srcPath, oldPath)
		}
		if err := entryMustExist(srcPath, oldPath); err != nil {
			return 0, nil, err
		}
		renamed, _, warn, rerr := rebuildCancellable(srcPath, "", RenamePrefix(oldPath, newPath), cancelled)
		return renamed, warn, rerr
	}}
}

// NewMoveTask builds a MutationTask that performs MoveEntries.
func NewMoveTask(srcPath string, entryPaths []string, newBase string) *MutationTask {
	return &MutationTask{srcPath: srcPath, run: func(cancelled *int32) (int, []string, liberr.Error) {
		for _, p := range entryPaths {
			if err := entryMustExist(srcPath, p); err != nil {
				return 0, nil, err
			}
		}
		if newBase != "" && !strings.HasSuffix(newBase, "/") {
			return 0, nil, ErrorMalformedBase.Error(nil)
		}
		mappers := make([]RenameMapper, len(entryPaths))
		for i, p := range entryPaths {
			mappers[i] = MovePrefix(p, newBase)
		}
		renamed, _, warn, rerr := rebuildCancellable(srcPath, "", composeMappers(mappers), cancelled)
		return renamed, warn, rerr
	}}
}

// NewRemoveTask builds a MutationTask that performs RemoveEntries.
func NewRemoveTask(srcPath string, entryPaths []string) *MutationTask {
	return &MutationTask{srcPath: srcPath, run: func(cancelled *int32) (int, []string, liberr.Error) {
		for _, p := range entryPaths {
			if err := entryMustExist(srcPath, p); err != nil {
				return 0, nil, err
			}
		}
		mappers := make([]RenameMapper, len(entryPaths))
		for i, p := range entryPaths {
			mappers[i] = DeletePrefix(p)
		}
		_, dropped, warn, rerr := rebuildCancellable(srcPath, "", composeMappers(mappers), cancelled)
		return dropped, warn, rerr
	}}
}

// Run executes the mutation, satisfying task.Runnable.
func (t *MutationTask) Run() liberr.Error {
	n, warn, err := t.run(&t.cancelled)
	t.Affected = n
	t.warnings = warn
	if err != nil {
		t.errOnce.Do(func() { t.err = err })
	}
	return err
}

// Warnings returns the non-fatal notes the rebuild raised, if any (spec
// §8: a rename/move to the archive root that would leave a child with an
// empty name is skipped rather than applied, and reported here). The
// task package's Task surfaces these as WARNING events ahead of the
// terminal FINISH event when a MutationTask is driven through task.Start.
func (t *MutationTask) Warnings() []string {
	return t.warnings
}

// Cancel requests cooperative shutdown: observed between entries of the
// rebuild loop, never mid-entry.
func (t *MutationTask) Cancel() {
	atomic.StoreInt32(&t.cancelled, 1)
}
