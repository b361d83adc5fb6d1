package http

import (
	"net/http"

	"expensetracker/internal/core"
)

type categoryRequest struct {
	Name string `json:"name"`
}

type subCategoryRequest struct {
	Category    string `json:"category"`
	SubCategory string `json:"subCategory"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := s.categories.ListCategories(r.Context())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if list == nil {
		list = []core.Category{}
	}
	NewJSONResponse().Body(list).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		FromError(r, err).Write(w)
		return
	}
	c, err := s.categories.AddCategory(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(c).Write(w)
}

func (s *Server) handleAddSubCategory(w http.ResponseWriter, r *http.Request) {
	var req subCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		FromError(r, err).Write(w)
		return
	}
	c, err := s.categories.AddSubCategory(r.Context(), sanitizeInput(req.Category), sanitizeInput(req.SubCategory))
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(c).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.categories.DeleteCategory(r.Context(), r.PathValue("name")); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
