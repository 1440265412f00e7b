package livepage

// shimJS runs before any page script in every document of the page. It wraps the
// listener and timer primitives and queues what they are asked to do. Listeners are
// tracked per target so duplicate adds are ignored the way the browser ignores them,
// and a removal reports how many listeners of its type are left. Element registrations
// carry the element's box at registration time.
const shimJS = `(() => {
	if (window.__domscout) return;
	const state = { regs: [], timers: [] };
	Object.defineProperty(window, '__domscout', { value: state, enumerable: false });
	const listeners = new WeakMap();
	const captureOf = (options) => typeof options === 'boolean' ? options : !!(options && options.capture);
	const same = (type, listener, capture) => (e) => e.type === type && e.listener === listener && e.capture === capture;

	const add = EventTarget.prototype.addEventListener;
	EventTarget.prototype.addEventListener = function (type, listener, options) {
		try {
			const capture = captureOf(options);
			type = String(type);
			let list = listeners.get(this);
			if (!list) listeners.set(this, list = []);
			if (listener && !list.some(same(type, listener, capture))) {
				list.push({ type: type, listener: listener, capture: capture });
				const reg = { target: this, type: type, capture: capture };
				if (this instanceof Element) {
					const r = this.getBoundingClientRect();
					reg.w = r.width;
					reg.h = r.height;
				}
				state.regs.push(reg);
			}
		} catch (e) {}
		return add.call(this, type, listener, options);
	};

	const remove = EventTarget.prototype.removeEventListener;
	EventTarget.prototype.removeEventListener = function (type, listener, options) {
		try {
			const capture = captureOf(options);
			type = String(type);
			const list = listeners.get(this);
			const i = list ? list.findIndex(same(type, listener, capture)) : -1;
			if (i >= 0) {
				list.splice(i, 1);
				const remaining = list.filter((e) => e.type === type).length;
				state.regs.push({ target: this, type: type, remove: true, remaining: remaining });
			}
		} catch (e) {}
		return remove.call(this, type, listener, options);
	};

	const wrap = (name, kind) => {
		const orig = window[name];
		window[name] = function (fn, delay, ...rest) {
			try {
				state.timers.push({ kind: kind, delay: Number(delay) || 0, callable: String(fn).slice(0, 200) });
			} catch (e) {}
			return orig.call(window, fn, delay, ...rest);
		};
	};
	wrap('setTimeout', 'timeout');
	wrap('setInterval', 'interval');
})();`

// snapshotJS serializes the document element and drains the shim queues. Element
// registrations and removals are rewritten to the preorder index of their element in
// the snapshot; those on nodes outside the document are dropped.
const snapshotJS = `() => {
	const state = window.__domscout || { regs: [], timers: [] };
	const index = new Map();
	let next = 0;
	const walk = (el) => {
		const node = { tag: el.tagName.toLowerCase(), attrs: [], children: [], props: [] };
		index.set(el, next++);
		for (const a of el.attributes) node.attrs.push([a.name, a.value]);
		const r = el.getBoundingClientRect();
		node.w = r.width;
		node.h = r.height;
		node.cursor = getComputedStyle(el).cursor;
		for (const k in el) {
			if (k.startsWith('on') && typeof el[k] === 'function' && !el.hasAttribute(k)) node.props.push(k);
		}
		for (const c of el.childNodes) {
			if (c.nodeType === 1) node.children.push(walk(c));
			else if (c.nodeType === 3) node.children.push({ text: c.data });
		}
		return node;
	};
	const root = document.documentElement ? walk(document.documentElement) : null;
	const regs = [];
	for (const r of state.regs.splice(0)) {
		const out = { type: r.type, capture: !!r.capture, remove: !!r.remove, remaining: r.remaining || 0 };
		if (r.target === window) out.kind = -1;
		else if (r.target === document) out.kind = 9;
		else if (index.has(r.target)) {
			out.kind = 1;
			out.index = index.get(r.target);
			if (r.w !== undefined) {
				out.w = r.w;
				out.h = r.h;
			}
		} else continue;
		regs.push(out);
	}
	return { root: root, regs: regs, timers: state.timers.splice(0) };
}`

// dispatchJS resolves a selector the way the in-memory engine does and fires one
// bubbling, cancelable event. It returns false when the target is missing or has a
// zero-by-zero box, or the event cannot be built.
const dispatchJS = `(selector, type, mouse) => {
	let target;
	if (selector === '!window') target = window;
	else if (selector === '!document') target = document;
	else {
		try { target = document.querySelector(selector); } catch (e) { return false; }
		if (!target) return false;
		const r = target.getBoundingClientRect();
		if (r.width === 0 && r.height === 0) return false;
	}
	let ev;
	try {
		if (mouse) {
			ev = new MouseEvent(type, { bubbles: true, cancelable: true, view: window });
		} else {
			ev = document.createEvent('Event');
			ev.initEvent(type, true, true);
		}
	} catch (e) {
		return false;
	}
	target.dispatchEvent(ev);
	return true;
}`
