package cdp

// registryJS evaluates to the page-side handle registry, installing it on first use.
// Elements are addressed by a key attribute so handles survive across evaluations
// without holding remote object references.
const registryJS = `(function () {
  if (window.__dubbadge) { return window.__dubbadge; }
  var R = { seq: 0, attr: 'data-dubbadge-key', subs: {} };
  R.key = function (el) {
    var k = el.getAttribute(R.attr);
    if (!k) { k = 'k' + (++R.seq) + '-' + Date.now().toString(36); el.setAttribute(R.attr, k); }
    return k;
  };
  R.find = function (k) { return document.querySelector('[' + R.attr + '="' + k + '"]'); };
  R.outermost = function (els) {
    return els.filter(function (el) {
      return !els.some(function (o) { return o !== el && o.contains(el); });
    });
  };
  R.describe = function (els, inner) {
    return els.map(function (el) { return { key: R.key(el), html: inner ? el.innerHTML : '' }; });
  };
  R.query = function (sel, nested, inner) {
    var els = Array.prototype.slice.call(document.querySelectorAll(sel));
    if (!nested) { els = R.outermost(els); }
    return R.describe(els, inner);
  };
  R.op = function (op, key, a, b) {
    var el = R.find(key);
    if (!el) { return { detached: true }; }
    switch (op) {
      case 'get': return { has: el.hasAttribute(a), value: el.getAttribute(a) || '' };
      case 'set': el.setAttribute(a, b); return {};
      case 'unset': el.removeAttribute(a); return {};
      case 'parent':
        var p = el.parentElement;
        return p ? { value: R.key(p) } : { none: true };
      case 'append':
        var f = JSON.parse(a);
        var c = document.createElement(f.tag || 'div');
        if (f.className) { c.className = f.className; }
        if (f.style) { c.style.cssText = f.style; }
        if (f.innerHTML) { c.innerHTML = f.innerHTML; }
        el.appendChild(c);
        return {};
      case 'remove': el.remove(); return {};
      case 'prop': el[a] = b; return {};
      case 'style': el.style.setProperty(a, b); return {};
    }
    return { error: 'unknown op ' + op };
  };
  R.observe = function (id, binding, sel, nested, inner) {
    var seen = new WeakSet();
    var pending = false;
    var flush = function () {
      pending = false;
      var els = Array.prototype.slice.call(document.querySelectorAll(sel));
      if (!nested) { els = R.outermost(els); }
      var fresh = els.filter(function (el) { return !seen.has(el); });
      if (!fresh.length) { return; }
      fresh.forEach(function (el) { seen.add(el); });
      window[binding](JSON.stringify({ sub: id, items: R.describe(fresh, inner) }));
    };
    var mo = new MutationObserver(function () {
      if (!pending) { pending = true; setTimeout(flush, 0); }
    });
    mo.observe(document.documentElement, { childList: true, subtree: true });
    R.subs[id] = mo;
    flush();
    return true;
  };
  R.unobserve = function (id) {
    if (R.subs[id]) { R.subs[id].disconnect(); delete R.subs[id]; }
    return true;
  };
  window.__dubbadge = R;
  return R;
})()`
