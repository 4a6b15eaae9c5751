// Command mkfs formats a block-device image file and optionally populates
// it from a host skeleton directory, grounded on the teacher's
// mkfs/mkfs.go (MkDisk + addfiles/copydata walk), adapted from biscuit's
// ufs.Ufs_t facade to this repo's fs.EasyFileSystem + fd.OSInode.Write.
package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rvkernel/fd"
	"rvkernel/fs"
	"rvkernel/klog"
)

var log = klog.For("mkfs")

func main() {
	image := flag.String("image", "", "output image path (required)")
	totalBlocks := flag.Int("blocks", 4096, "total blocks in the image")
	inodeBitmapBlocks := flag.Int("inode-bitmap-blocks", 1, "inode bitmap blocks")
	skel := flag.String("skel", "", "host directory tree to copy into the image root")
	flag.Parse()

	if *image == "" {
		log.Error("missing -image")
		os.Exit(1)
	}

	dev, err := fs.CreateFileDevice(*image, *totalBlocks)
	if err != nil {
		log.Error("create image", "err", err)
		os.Exit(1)
	}
	defer dev.Close()

	efs := fs.Create(dev, *totalBlocks, *inodeBitmapBlocks)
	root := fs.RootInode(efs)

	if *skel != "" {
		addTree(root, *skel)
	}

	if err := dev.Sync(); err != nil {
		log.Error("sync image", "err", err)
		os.Exit(1)
	}
	log.Info("formatted image", "path", *image, "blocks", *totalBlocks)
}

// addTree walks skelDir on the host and replicates its directory/file
// structure into dir, copying file contents in fs.BlockSize chunks.
func addTree(dir *fs.Inode, skelDir string) {
	err := filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Warn("walk", "path", path, "err", err)
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skelDir), "/")
		if rel == "" {
			return nil
		}
		parent := dir
		if up := filepath.Dir(rel); up != "." {
			p, ok := dir.Find(up)
			if !ok {
				log.Warn("missing parent", "path", rel)
				return nil
			}
			parent = p
		}
		name := filepath.Base(rel)
		if d.IsDir() {
			if _, cerr := parent.CreateInode(name, fs.TypeDirectory); cerr != 0 {
				log.Warn("mkdir", "path", rel, "err", cerr)
			}
			return nil
		}
		ino, cerr := parent.CreateInode(name, fs.TypeFile)
		if cerr != 0 {
			log.Warn("create", "path", rel, "err", cerr)
			return nil
		}
		copyFileInto(path, ino)
		return nil
	})
	if err != nil {
		log.Error("walk skeleton", "err", err)
		os.Exit(1)
	}
}

func copyFileInto(hostPath string, ino *fs.Inode) {
	src, err := os.Open(hostPath)
	if err != nil {
		log.Warn("open host file", "path", hostPath, "err", err)
		return
	}
	defer src.Close()

	osi := fd.NewOSInode(false, true, ino)
	buf := make([]byte, fs.BlockSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := osi.Write(buf[:n]); werr != 0 {
				log.Warn("write into image", "path", hostPath, "err", werr)
				return
			}
		}
		if rerr == io.EOF {
			return
		}
		if rerr != nil {
			log.Warn("read host file", "path", hostPath, "err", rerr)
			return
		}
	}
}
