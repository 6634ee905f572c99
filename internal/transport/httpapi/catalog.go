package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

func (h *Handler) listCategories(c echo.Context) error {
	categories, err := h.catalog.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	result := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		result = append(result, toCategoryResponse(category))
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) createCategory(c echo.Context) error {
	var req categoryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	category, err := h.catalog.CreateCategory(c.Request().Context(), domain.Category{Name: req.Name, Image: req.Image})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toCategoryResponse(category))
}

func (h *Handler) getCategory(c echo.Context) error {
	category, err := h.catalog.GetCategory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCategoryResponse(category))
}

func (h *Handler) updateCategory(c echo.Context) error {
	var req categoryRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	category, err := h.catalog.UpdateCategory(c.Request().Context(), domain.Category{
		ID:    c.Param("id"),
		Name:  req.Name,
		Image: req.Image,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCategoryResponse(category))
}

func (h *Handler) deleteCategory(c echo.Context) error {
	if err := h.catalog.DeleteCategory(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) listProducts(c echo.Context) error {
	filter := domain.ProductFilter{CategoryID: c.QueryParam("category_id")}
	products, err := h.catalog.ListProducts(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	result := make([]productResponse, 0, len(products))
	for _, product := range products {
		result = append(result, toProductResponse(product))
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) createProduct(c echo.Context) error {
	var req productRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	product, err := h.catalog.CreateProduct(c.Request().Context(), req.toDomain(""))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toProductResponse(product))
}

func (h *Handler) getProduct(c echo.Context) error {
	product, err := h.catalog.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

func (h *Handler) updateProduct(c echo.Context) error {
	var req productRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	product, err := h.catalog.UpdateProduct(c.Request().Context(), req.toDomain(c.Param("id")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

func (h *Handler) deleteProduct(c echo.Context) error {
	if err := h.catalog.DeleteProduct(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) listOffers(c echo.Context) error {
	offers, err := h.catalog.ListOffers(c.Request().Context())
	if err != nil {
		return err
	}
	result := make([]offerResponse, 0, len(offers))
	for _, offer := range offers {
		result = append(result, toOfferResponse(offer))
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) createOffer(c echo.Context) error {
	var req offerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	offer, err := h.catalog.CreateOffer(c.Request().Context(), req.toDomain(""))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toOfferResponse(offer))
}

func (h *Handler) getOffer(c echo.Context) error {
	offer, err := h.catalog.GetOffer(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOfferResponse(offer))
}

func (h *Handler) updateOffer(c echo.Context) error {
	var req offerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	offer, err := h.catalog.UpdateOffer(c.Request().Context(), req.toDomain(c.Param("id")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOfferResponse(offer))
}

func (h *Handler) deleteOffer(c echo.Context) error {
	if err := h.catalog.DeleteOffer(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
