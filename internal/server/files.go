package server

import (
	"net/http"
	"path"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const uploadPathHeader = "FILE_UPLOAD_PATH"

func (s *Server) ListFilesHandler(c echo.Context) error {
	dir, ok := param(c, "path")
	if !ok {
		return s.errorResponse(c, errBadRequest)
	}
	depth := 0
	if raw, ok := param(c, "depth"); ok {
		var err error
		if depth, err = strconv.Atoi(raw); err != nil || depth < 0 {
			return s.errorResponse(c, errBadRequest)
		}
	}
	if !s.core.Store.IsDir(dir) {
		return c.String(http.StatusBadRequest, "Folder doesn't exist")
	}
	files, err := s.core.Store.List(dir, depth)
	if err != nil {
		return s.errorResponse(c, err)
	}
	if files == nil {
		files = []string{}
	}
	return c.JSON(http.StatusOK, map[string][]string{"files": files})
}

func (s *Server) DownloadHandler(c echo.Context) error {
	name, ok := param(c, "path")
	if !ok {
		return s.errorResponse(c, errBadRequest)
	}
	if !s.core.Store.Exists(name) || s.core.Store.IsDir(name) {
		return c.String(http.StatusBadRequest, "File doesn't exist")
	}
	content, err := s.core.Store.Read(name)
	if err != nil {
		return s.errorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+strconv.Quote(path.Base(name)))
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, []byte(content))
}

func (s *Server) DeleteFileHandler(c echo.Context) error {
	name, ok := param(c, "path")
	if !ok {
		return s.errorResponse(c, errBadRequest)
	}
	if !s.core.Store.Exists(name) || s.core.Store.IsDir(name) {
		return c.String(http.StatusBadRequest, "File doesn't exist")
	}
	if err := s.core.Store.Remove(name); err != nil {
		return s.errorResponse(c, err)
	}
	s.logger.Info("server@delete", zap.String("file", name))
	return c.JSON(http.StatusOK, map[string]string{"file": name})
}

// UploadHandler stores the multipart "file" field in the folder named by the
// FILE_UPLOAD_PATH header. A partially written file is removed.
func (s *Server) UploadHandler(c echo.Context) error {
	dir := c.Request().Header.Get(uploadPathHeader)
	if dir == "" {
		return c.String(http.StatusBadRequest, "Missing "+uploadPathHeader+" header")
	}
	header, err := c.FormFile("file")
	if err != nil {
		return s.errorResponse(c, errBadRequest)
	}
	src, err := header.Open()
	if err != nil {
		return s.errorResponse(c, err)
	}
	defer src.Close()

	name := path.Join(dir, path.Base(header.Filename))
	if err := s.core.Store.WriteReader(name, src); err != nil {
		s.logger.Error("server@upload failed", zap.String("file", name), zap.Error(err))
		return c.String(http.StatusInsufficientStorage, "Could not write file")
	}
	s.logger.Info("server@upload", zap.String("file", name), zap.Int64("size", header.Size))
	return c.String(http.StatusCreated, "File uploaded")
}

func (s *Server) FreeSpaceHandler(c echo.Context) error {
	space, err := s.core.Store.FreeSpace()
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]uint64{"space": space})
}
