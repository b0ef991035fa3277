package api

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/faradayfan/dedicated-server-manager/internal/ini"
	"github.com/faradayfan/dedicated-server-manager/internal/manager"
	"github.com/faradayfan/dedicated-server-manager/internal/profiles"
	"github.com/faradayfan/dedicated-server-manager/internal/settings"
)

func (s *Server) handleList(c *fiber.Ctx) error {
	return c.JSON(ListResponse{Servers: s.svc.List()})
}

func (s *Server) handleCreate(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if req.Name == "" || req.InstallDir == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name and install_dir are required")
	}
	p, err := s.svc.Create(req.Name, req.InstallDir)
	if err != nil {
		return err
	}
	sum, err := s.svc.Get(p.ID.String())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sum)
}

func (s *Server) handleImport(c *fiber.Ctx) error {
	var req ImportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if req.Dir == "" {
		return fiber.NewError(fiber.StatusBadRequest, "dir is required")
	}
	includeIni := req.IncludeIni == nil || *req.IncludeIni
	p, warns, err := s.svc.Import(req.Dir, includeIni)
	if err != nil {
		return err
	}
	out := warns.Strings()
	if out == nil {
		out = []string{}
	}
	return c.Status(fiber.StatusCreated).JSON(ImportResponse{ID: p.ID.String(), Name: p.Name, Warnings: out})
}

// handleDelete stops managing a server. With ?data=true the server is killed
// and its profile directory removed as well.
func (s *Server) handleDelete(c *fiber.Ctx) error {
	id := c.Params("id")
	var err error
	if c.QueryBool("data", false) {
		err = s.svc.Obliterate(c.UserContext(), id)
	} else {
		err = s.svc.Forget(id)
	}
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) setEnabled(enabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := s.svc.SetEnabled(id, enabled); err != nil {
			return err
		}
		sum, err := s.svc.Get(id)
		if err != nil {
			return err
		}
		return c.JSON(sum)
	}
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	sum, err := s.svc.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sum)
}

func (s *Server) lifecycle(op func(context.Context, string) (manager.Status, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := op(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(st)
	}
}

// handleSettings lists overridden settings, or every setting with ?all=true.
func (s *Server) handleSettings(c *fiber.Ctx) error {
	p, err := s.svc.Profile(c.Params("id"))
	if err != nil {
		return err
	}
	all := c.QueryBool("all", false)
	var out []SettingView
	if all {
		for _, st := range p.Catalog().All() {
			out = append(out, view(p, st))
		}
	} else {
		for _, o := range p.Overrides() {
			st, _ := p.Catalog().Lookup(o.Name)
			out = append(out, view(p, st))
		}
	}
	if out == nil {
		out = []SettingView{}
	}
	return c.JSON(SettingsResponse{Settings: out})
}

func view(p *profiles.Profile, st settings.Setting) SettingView {
	v := SettingView{
		Name:        st.Name,
		Kind:        st.Kind.String(),
		Default:     ini.FormatValue(st, st.Default),
		Location:    st.Location.String(),
		Section:     st.Section,
		Description: st.Description,
		Deprecated:  st.Deprecated,
	}
	if o, ok := p.Override(st.Name); ok {
		v.Overridden = true
		v.Favorite = o.Favorite
		v.Value = ini.FormatValue(st, o.Value)
	} else {
		v.Value = v.Default
	}
	return v
}

func (s *Server) handleSetSetting(c *fiber.Ctx) error {
	p, err := s.svc.Profile(c.Params("id"))
	if err != nil {
		return err
	}
	name := c.Params("name")
	st, ok := p.Catalog().Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", profiles.ErrUnknownSetting, name)
	}
	var req SetSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	v, err := ini.ParseValue(st, req.Value)
	if err != nil {
		return err
	}
	if err := p.SetOverride(st.Name, v, req.Favorite); err != nil {
		return err
	}
	return c.JSON(view(p, st))
}

func (s *Server) handleRemoveSetting(c *fiber.Ctx) error {
	p, err := s.svc.Profile(c.Params("id"))
	if err != nil {
		return err
	}
	name := c.Params("name")
	if !p.RemoveOverride(name) {
		return fiber.NewError(fiber.StatusNotFound, "no override for "+name)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSave(c *fiber.Ctx) error {
	warns, err := s.svc.SaveProfile(c.Params("id"))
	if err != nil {
		return err
	}
	out := warns.Strings()
	if out == nil {
		out = []string{}
	}
	return c.JSON(SaveResponse{Warnings: out})
}
